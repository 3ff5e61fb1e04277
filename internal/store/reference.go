package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tableside/internal/domain"
)

// StaffMember grants a user a role at a location.
type StaffMember struct {
	LocationID string `yaml:"location_id"`
	UserID     string `yaml:"user_id"`
	Role       string `yaml:"role"`
}

// Seed is a batch of reference data, usually loaded from YAML.
type Seed struct {
	Locations []domain.Location `yaml:"locations"`
	Tables    []domain.Table    `yaml:"tables"`
	MenuItems []domain.MenuItem `yaml:"menu_items"`
	Staff     []StaffMember     `yaml:"staff"`
	Admins    []string          `yaml:"admins"`
}

// ApplySeed upserts every row in seed inside one transaction.
func (s *Store) ApplySeed(ctx context.Context, seed Seed) error {
	return s.InTx(ctx, func(tx *Tx) error {
		for _, loc := range seed.Locations {
			if err := tx.UpsertLocation(ctx, loc); err != nil {
				return err
			}
		}
		for _, tbl := range seed.Tables {
			if err := tx.UpsertTable(ctx, tbl); err != nil {
				return err
			}
		}
		for _, mi := range seed.MenuItems {
			if err := tx.UpsertMenuItem(ctx, mi); err != nil {
				return err
			}
		}
		for _, st := range seed.Staff {
			if err := tx.UpsertStaff(ctx, st); err != nil {
				return err
			}
		}
		for _, userID := range seed.Admins {
			if err := tx.AddAdmin(ctx, userID); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertLocation inserts or replaces a location.
func (t *Tx) UpsertLocation(ctx context.Context, loc domain.Location) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO locations (id, merchant_id, name, tax_rate, service_charge_rate)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			merchant_id = excluded.merchant_id,
			name = excluded.name,
			tax_rate = excluded.tax_rate,
			service_charge_rate = excluded.service_charge_rate
	`, loc.ID, loc.MerchantID, loc.Name, loc.TaxRate, loc.ServiceChargeRate)
	if err != nil {
		return fmt.Errorf("upsert location %s: %w", loc.ID, err)
	}
	return nil
}

// UpsertTable inserts or replaces a table.
func (t *Tx) UpsertTable(ctx context.Context, tbl domain.Table) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO dining_tables (id, location_id, label)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			location_id = excluded.location_id,
			label = excluded.label
	`, tbl.ID, tbl.LocationID, tbl.Label)
	if err != nil {
		return fmt.Errorf("upsert table %s: %w", tbl.ID, err)
	}
	return nil
}

// UpsertMenuItem inserts or replaces a menu item.
func (t *Tx) UpsertMenuItem(ctx context.Context, mi domain.MenuItem) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO menu_items (id, location_id, name, price, station, inactive)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			location_id = excluded.location_id,
			name = excluded.name,
			price = excluded.price,
			station = excluded.station,
			inactive = excluded.inactive
	`, mi.ID, mi.LocationID, mi.Name, mi.Price, mi.Station, mi.Inactive)
	if err != nil {
		return fmt.Errorf("upsert menu item %s: %w", mi.ID, err)
	}
	return nil
}

// UpsertStaff grants or updates a staff role.
func (t *Tx) UpsertStaff(ctx context.Context, st StaffMember) error {
	role := st.Role
	if role == "" {
		role = "server"
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO staff (location_id, user_id, role)
		VALUES (?, ?, ?)
		ON CONFLICT(location_id, user_id) DO UPDATE SET role = excluded.role
	`, st.LocationID, st.UserID, role)
	if err != nil {
		return fmt.Errorf("upsert staff %s@%s: %w", st.UserID, st.LocationID, err)
	}
	return nil
}

// RemoveStaff revokes a user's role at a location.
func (t *Tx) RemoveStaff(ctx context.Context, locationID, userID string) error {
	_, err := t.q.ExecContext(ctx, `DELETE FROM staff WHERE location_id = ? AND user_id = ?`, locationID, userID)
	if err != nil {
		return fmt.Errorf("remove staff %s@%s: %w", userID, locationID, err)
	}
	return nil
}

// AddAdmin marks a user as a platform administrator.
func (t *Tx) AddAdmin(ctx context.Context, userID string) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO admins (user_id) VALUES (?) ON CONFLICT DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("add admin %s: %w", userID, err)
	}
	return nil
}

// Location returns the location with id, or ErrNotFound.
func (t *Tx) Location(ctx context.Context, id string) (domain.Location, error) {
	var loc domain.Location
	err := t.q.QueryRowContext(ctx, `
		SELECT id, merchant_id, name, tax_rate, service_charge_rate
		FROM locations WHERE id = ?
	`, id).Scan(&loc.ID, &loc.MerchantID, &loc.Name, &loc.TaxRate, &loc.ServiceChargeRate)
	if err != nil {
		return domain.Location{}, notFound(err, "location "+id)
	}
	return loc, nil
}

// Table returns the table with id, or ErrNotFound.
func (t *Tx) Table(ctx context.Context, id string) (domain.Table, error) {
	var tbl domain.Table
	err := t.q.QueryRowContext(ctx, `
		SELECT id, location_id, label FROM dining_tables WHERE id = ?
	`, id).Scan(&tbl.ID, &tbl.LocationID, &tbl.Label)
	if err != nil {
		return domain.Table{}, notFound(err, "table "+id)
	}
	return tbl, nil
}

// MenuItem returns the menu item with id, or ErrNotFound.
func (t *Tx) MenuItem(ctx context.Context, id string) (domain.MenuItem, error) {
	var mi domain.MenuItem
	err := t.q.QueryRowContext(ctx, `
		SELECT id, location_id, name, price, station, inactive FROM menu_items WHERE id = ?
	`, id).Scan(&mi.ID, &mi.LocationID, &mi.Name, &mi.Price, &mi.Station, &mi.Inactive)
	if err != nil {
		return domain.MenuItem{}, notFound(err, "menu item "+id)
	}
	return mi, nil
}

// StaffRole returns the user's role at the location. ok is false when the
// user is not staff there.
func (t *Tx) StaffRole(ctx context.Context, locationID, userID string) (role string, ok bool, err error) {
	err = t.q.QueryRowContext(ctx, `
		SELECT role FROM staff WHERE location_id = ? AND user_id = ?
	`, locationID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("staff role: %w", err)
	}
	return role, true, nil
}

// IsAdmin reports whether the user is a platform administrator.
func (t *Tx) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var n int
	err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is admin: %w", err)
	}
	return n > 0, nil
}
