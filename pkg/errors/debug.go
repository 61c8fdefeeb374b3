package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump breaks an error chain down for logs. It is never sent to clients.
type ErrorDump struct {
	Message  string        `json:"message"`
	Code     Code          `json:"code,omitempty"`
	Chain    []string      `json:"chain,omitempty"`
	Upstream *UpstreamDump `json:"upstream,omitempty"`
	Postgres *PostgresDump `json:"postgres,omitempty"`
}

// UpstreamDump describes a failed store platform call.
type UpstreamDump struct {
	Operation string `json:"operation,omitempty"`
	Status    int    `json:"status,omitempty"`
}

// PostgresDump carries the server-side fields of a Postgres error.
type PostgresDump struct {
	Code       string `json:"code"`
	Table      string `json:"table,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{Message: err.Error()}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.Upstream = upstreamFrom(typed.Details())
	}
	d.Postgres = postgresFrom(err)
	return d
}

// LogFields flattens the dump into logger fields.
func (d ErrorDump) LogFields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if up := d.Upstream; up != nil {
		if up.Operation != "" {
			fields["operation"] = up.Operation
		}
		if up.Status != 0 {
			fields["upstream_status"] = up.Status
		}
	}
	if pg := d.Postgres; pg != nil {
		fields["pg_code"] = pg.Code
		fields["pg_table"] = pg.Table
		fields["pg_constraint"] = pg.Constraint
		fields["pg_detail"] = pg.Detail
		fields["pg_message"] = pg.Message
	}
	return fields
}

// upstreamFrom reads the operation/status details set by the platform client.
func upstreamFrom(details any) *UpstreamDump {
	m, ok := details.(map[string]any)
	if !ok {
		return nil
	}
	up := UpstreamDump{}
	up.Operation, _ = m["operation"].(string)
	up.Status, _ = m["status"].(int)
	if up.Operation == "" && up.Status == 0 {
		return nil
	}
	return &up
}

// postgresFrom accepts both driver error types: gorm's postgres driver
// surfaces pgx errors, while database/sql callers on lib/pq surface pq errors.
func postgresFrom(err error) *PostgresDump {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PostgresDump{
			Code:       pgxErr.Code,
			Table:      pgxErr.TableName,
			Constraint: pgxErr.ConstraintName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PostgresDump{
			Code:       string(pqErr.Code),
			Table:      pqErr.Table,
			Constraint: pqErr.Constraint,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
