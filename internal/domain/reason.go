package domain

// Reason is the machine-readable tag carried by a failed outcome.
type Reason string

const (
	ReasonSessionNotOpen     Reason = "session_not_open"
	ReasonItemSentToKitchen  Reason = "item_sent_to_kitchen"
	ReasonItemNotPending     Reason = "item_not_pending"
	ReasonItemNotPreparing   Reason = "item_not_preparing"
	ReasonItemNotReady       Reason = "item_not_ready"
	ReasonItemAlreadyVoided  Reason = "item_already_voided"
	ReasonItemAlreadyRefired Reason = "item_already_refired"
	ReasonInvalidTransition  Reason = "invalid_transition"
	ReasonWaveAlreadyFired   Reason = "wave_already_fired"
	ReasonNoWaveToFire       Reason = "no_wave_to_fire"
	ReasonOrderAlreadyFired  Reason = "order_already_fired"
	ReasonOrderCancelled     Reason = "order_cancelled"
	ReasonPaymentNotPending  Reason = "payment_not_pending"
	ReasonPaymentNotComplete Reason = "payment_not_completed"

	ReasonUnfinishedItems   Reason = "unfinished_items"
	ReasonKitchenMidFire    Reason = "kitchen_mid_fire"
	ReasonPaymentInProgress Reason = "payment_in_progress"
	ReasonUnpaidBalance     Reason = "unpaid_balance"

	ReasonNotFound         Reason = "not_found"
	ReasonSessionNotFound  Reason = "session_not_found"
	ReasonOrderNotFound    Reason = "order_not_found"
	ReasonItemNotFound     Reason = "item_not_found"
	ReasonLocationNotFound Reason = "location_not_found"
	ReasonTableNotFound    Reason = "table_not_found"
	ReasonPaymentNotFound  Reason = "payment_not_found"

	ReasonNotStaff     Reason = "not_staff"
	ReasonUnauthorized Reason = "unauthorized"
	ReasonForbidden    Reason = "forbidden"

	ReasonBadRequest Reason = "bad_request"
)

var reasonInfo = map[Reason]struct {
	kind    Kind
	message string
}{
	ReasonSessionNotOpen:     {KindStateConflict, "Session is not open"},
	ReasonItemSentToKitchen:  {KindStateConflict, "Item has already been sent to the kitchen"},
	ReasonItemNotPending:     {KindStateConflict, "Item is not pending"},
	ReasonItemNotPreparing:   {KindStateConflict, "Item is not being prepared"},
	ReasonItemNotReady:       {KindStateConflict, "Item is not ready"},
	ReasonItemAlreadyVoided:  {KindStateConflict, "Item has already been voided"},
	ReasonItemAlreadyRefired: {KindStateConflict, "Item has already been refired"},
	ReasonInvalidTransition:  {KindStateConflict, "Requested status change is not allowed"},
	ReasonWaveAlreadyFired:   {KindStateConflict, "Wave has already been fired"},
	ReasonNoWaveToFire:       {KindStateConflict, "Wave has no unsent items"},
	ReasonOrderAlreadyFired:  {KindStateConflict, "Order has already been sent to the kitchen"},
	ReasonOrderCancelled:     {KindStateConflict, "Order has been cancelled"},
	ReasonPaymentNotPending:  {KindStateConflict, "Payment is not pending"},
	ReasonPaymentNotComplete: {KindStateConflict, "Payment is not completed"},

	ReasonUnfinishedItems:   {KindBusinessRule, "Session has items that have not been served"},
	ReasonKitchenMidFire:    {KindBusinessRule, "Kitchen is still working on a fired item"},
	ReasonPaymentInProgress: {KindBusinessRule, "A payment is still in progress"},
	ReasonUnpaidBalance:     {KindBusinessRule, "Session has an unpaid balance"},

	ReasonNotFound:         {KindNotFound, "Not found"},
	ReasonSessionNotFound:  {KindNotFound, "Session not found"},
	ReasonOrderNotFound:    {KindNotFound, "Order not found"},
	ReasonItemNotFound:     {KindNotFound, "Menu item not found"},
	ReasonLocationNotFound: {KindNotFound, "Location not found"},
	ReasonTableNotFound:    {KindNotFound, "Table not found"},
	ReasonPaymentNotFound:  {KindNotFound, "Payment not found"},

	ReasonNotStaff:     {KindAuthorization, "You are not staff at this location"},
	ReasonUnauthorized: {KindAuthorization, "You are not allowed to perform this action"},
	ReasonForbidden:    {KindAuthorization, "Forbidden"},

	ReasonBadRequest: {KindValidation, "Invalid request"},
}

// Kind classifies the reason for transport mapping.
func (r Reason) Kind() Kind {
	if info, ok := reasonInfo[r]; ok {
		return info.kind
	}
	return KindInternal
}

// Message returns the default human-readable message for r.
func (r Reason) Message() string {
	if info, ok := reasonInfo[r]; ok {
		return info.message
	}
	return string(r)
}

// Result is the discriminated outcome every operation returns.
// Expected business failures are results, not errors.
type Result struct {
	OK      bool   `json:"ok"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// Success returns a successful result.
func Success() Result {
	return Result{OK: true}
}

// Fail returns a failed result with the reason's default message.
func Fail(r Reason) Result {
	return Result{Reason: r, Message: r.Message()}
}

// Failf returns a failed result with a specific message.
func Failf(r Reason, message string) Result {
	return Result{Reason: r, Message: message}
}

// Outcome returns r. Structs embedding Result inherit it, which lets
// transports read the outcome of any operation reply.
func (r Result) Outcome() Result {
	return r
}
