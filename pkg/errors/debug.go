package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Report is the operator view of a failure: the code, the unwrapped chain
// and, when a Postgres error sits in the chain, its server-side details.
type Report struct {
	Message   string
	Code      Code
	Retryable bool
	Chain     []string
	Postgres  *PGDetails
}

type PGDetails struct {
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// Dump builds the Report for err. Both pgx and lib/pq errors are recognized.
func Dump(err error) Report {
	if err == nil {
		return Report{}
	}
	r := Report{Message: err.Error(), Code: CodeOf(err), Retryable: IsRetryable(err)}
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		r.Chain = append(r.Chain, fmt.Sprintf("%T: %v", cur, cur))
	}
	r.Postgres = postgresDetails(err)
	return r
}

// Fields flattens the report into log fields, leaving out empty values.
func (r Report) Fields() map[string]any {
	out := map[string]any{
		"error":           r.Message,
		"error_retryable": r.Retryable,
	}
	if r.Code != "" {
		out["error_code"] = r.Code
	}
	if len(r.Chain) > 1 {
		out["error_chain"] = r.Chain
	}
	if pg := r.Postgres; pg != nil {
		for k, v := range map[string]string{
			"pg_code":       pg.Code,
			"pg_constraint": pg.Constraint,
			"pg_table":      pg.Table,
			"pg_column":     pg.Column,
			"pg_detail":     pg.Detail,
			"pg_message":    pg.Message,
		} {
			if v != "" {
				out[k] = v
			}
		}
	}
	return out
}

func postgresDetails(err error) *PGDetails {
	if pgxErr := new(pgconn.PgError); errors.As(err, &pgxErr) {
		return &PGDetails{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	if pqErr := new(pq.Error); errors.As(err, &pqErr) {
		return &PGDetails{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
