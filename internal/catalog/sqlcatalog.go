package catalog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/7c/centralmon/internal/alarm"
	"github.com/7c/centralmon/internal/registry"
)

// contactTypes are the three contact roles notification resolution pulls
// from the catalog, matching the original aggregator's contact query.
var contactTypes = []string{"Primary Developer", "Backup Developer", "Primary Contact"}

// SQLCatalog implements Catalog over database/sql using the pure-Go
// modernc.org/sqlite driver. One long-lived *sql.DB (itself an internal
// pool) is reused across every sync, matching §5's "one catalog
// connection pool" resource model (see DESIGN.md "catalog connection-pool
// reuse").
type SQLCatalog struct {
	db *sql.DB
}

// Open opens the catalog database at dsn. The connection is kept open for
// the lifetime of the aggregator process.
func Open(dsn string) (*SQLCatalog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", dsn, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: ping %s: %w", dsn, err)
	}
	return &SQLCatalog{db: db}, nil
}

func (c *SQLCatalog) Close() error { return c.db.Close() }

// HostThresholds implements Catalog (§6 query 1).
func (c *SQLCatalog) HostThresholds(hostName string) (registry.HostThresholds, error) {
	var th registry.HostThresholds
	row := c.db.QueryRow(`
		SELECT max_cpu_percent, max_disk_percent, max_main_percent, max_swap_percent, max_processes
		FROM server
		WHERE name = ?`, hostName)

	err := row.Scan(&th.MaxCPUPercent, &th.MaxDiskPercent, &th.MaxMainPercent, &th.MaxSwapPercent, &th.MaxProcesses)
	if err != nil {
		return registry.HostThresholds{}, fmt.Errorf("catalog: host thresholds for %s: %w", hostName, err)
	}
	return th, nil
}

// HostDaemons implements Catalog (§6 query 2).
func (c *SQLCatalog) HostDaemons(hostName string) ([]DaemonRow, error) {
	rows, err := c.db.Query(`
		SELECT asd.id, asd.daemon, asd.delay_seconds,
		       asd.min_processes, asd.max_processes,
		       asd.min_image_kb, asd.max_image_kb,
		       asd.min_resident_kb, asd.max_resident_kb,
		       asd.owner, asd.script
		FROM application_server_detail asd
		JOIN server s ON s.id = asd.server_id
		WHERE s.name = ?`, hostName)
	if err != nil {
		return nil, fmt.Errorf("catalog: host daemons for %s: %w", hostName, err)
	}
	defer rows.Close()

	var out []DaemonRow
	for rows.Next() {
		var d DaemonRow
		var owner, script sql.NullString
		if err := rows.Scan(&d.CatalogID, &d.Daemon, &d.Delay,
			&d.MinProcesses, &d.MaxProcesses,
			&d.MinImageKB, &d.MaxImageKB,
			&d.MinResidentKB, &d.MaxResidentKB,
			&owner, &script); err != nil {
			return nil, fmt.Errorf("catalog: scan daemon row for %s: %w", hostName, err)
		}
		d.Owner = owner.String
		d.Script = script.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// DaemonContacts implements Catalog (§6 queries 3 and 4): resolves the
// primary/backup/contact persons for daemon on hostName, then scopes
// them to hostName when the application-contact has per-server contact
// rows (mirroring the original's two-stage application_server_contact
// lookup).
func (c *SQLCatalog) DaemonContacts(hostName, daemon string) ([]alarm.Contact, error) {
	placeholders := make([]any, 0, len(contactTypes)+2)
	placeholders = append(placeholders, daemon, hostName)
	for _, t := range contactTypes {
		placeholders = append(placeholders, t)
	}

	query := `
		SELECT ac.id, p.userid, p.email
		FROM application_server_detail asd
		JOIN application_server aps ON aps.id = asd.application_server_id
		JOIN server s ON s.id = aps.server_id
		JOIN application_contact ac ON ac.application_server_id = aps.id
		JOIN contact_type ct ON ct.id = ac.contact_type_id
		JOIN person p ON p.id = ac.person_id
		WHERE asd.daemon = ? AND s.name = ? AND ct.name IN (?, ?, ?)`

	rows, err := c.db.Query(query, placeholders...)
	if err != nil {
		return nil, fmt.Errorf("catalog: daemon contacts for %s/%s: %w", hostName, daemon, err)
	}
	defer rows.Close()

	var contacts []alarm.Contact
	for rows.Next() {
		var contactID int64
		var contact alarm.Contact
		if err := rows.Scan(&contactID, &contact.UserID, &contact.Email); err != nil {
			return nil, fmt.Errorf("catalog: scan daemon contact for %s/%s: %w", hostName, daemon, err)
		}

		var count int
		if err := c.db.QueryRow(`
			SELECT COUNT(*) FROM application_server_contact WHERE application_contact_id = ?`,
			contactID).Scan(&count); err != nil {
			return nil, fmt.Errorf("catalog: scope count for contact %d: %w", contactID, err)
		}
		if count > 0 {
			var scoped int
			err := c.db.QueryRow(`
				SELECT COUNT(*)
				FROM application_server_contact asc
				JOIN server s ON s.id = asc.server_id
				WHERE asc.application_contact_id = ? AND s.name = ?`,
				contactID, hostName).Scan(&scoped)
			if err != nil {
				return nil, fmt.Errorf("catalog: scope filter for contact %d: %w", contactID, err)
			}
			if scoped == 0 {
				continue
			}
		}

		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

// ServerContacts implements Catalog (§6 query 5).
func (c *SQLCatalog) ServerContacts(hostName string) ([]alarm.Contact, error) {
	rows, err := c.db.Query(`
		SELECT p.userid, p.email, sc.on_notify
		FROM server_contact sc
		JOIN server s ON s.id = sc.server_id
		JOIN person p ON p.id = sc.person_id
		WHERE s.name = ?`, hostName)
	if err != nil {
		return nil, fmt.Errorf("catalog: server contacts for %s: %w", hostName, err)
	}
	defer rows.Close()

	var contacts []alarm.Contact
	for rows.Next() {
		var contact alarm.Contact
		if err := rows.Scan(&contact.UserID, &contact.Email, &contact.OnCall); err != nil {
			return nil, fmt.Errorf("catalog: scan server contact for %s: %w", hostName, err)
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}
