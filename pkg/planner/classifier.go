package planner

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/recordstore"
)

// RuleReadOnly marks a write the read-only runner refused at execution.
const RuleReadOnly = "read_only"

// PostgreSQL SQLSTATE codes the classifier understands.
const (
	pgUndefinedColumn           = "42703"
	pgUndefinedTable            = "42P01"
	pgSyntaxError               = "42601"
	pgQueryCanceled             = "57014"
	pgReadOnlyTransaction       = "25006"
	pgUndefinedFunction         = "42883"
	pgAmbiguousColumn           = "42702"
	pgGroupingError             = "42803"
	pgDatatypeMismatch          = "42804"
	pgInvalidTextRepresentation = "22P02"
)

// SQL Server error numbers.
const (
	mssqlInvalidColumn = 207
	mssqlInvalidObject = 208
	mssqlSyntaxNear    = 102
	mssqlSyntaxKeyword = 156
)

// sqlServerError is implemented by go-mssqldb's error type.
type sqlServerError interface {
	error
	SQLErrorNumber() int32
}

var (
	pgColumnPattern    = regexp.MustCompile(`column "?([^"\s]+)"? does not exist`)
	pgRelationPattern  = regexp.MustCompile(`relation "([^"]+)" does not exist`)
	unknownColumnMsg   = regexp.MustCompile(`(?i)unknown column '([^']+)'`)
	invalidColumnMsg   = regexp.MustCompile(`(?i)invalid column name '([^']+)'`)
	missingTableMsg    = regexp.MustCompile(`(?i)table '([^']+)' doesn't exist`)
	invalidObjectMsg   = regexp.MustCompile(`(?i)invalid object name '([^']+)'`)
	syntaxErrorPattern = regexp.MustCompile(`(?i)syntax error|incorrect syntax`)
)

// Classify maps a raw failure to the closed error taxonomy. It prefers
// errors already classified by the adapters, then driver error codes, then
// message patterns. Anything unrecognised is Internal.
func Classify(err error) *models.ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *models.ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	var execErr *recordstore.ExecError
	if errors.As(err, &execErr) {
		ce := &models.ClassifiedError{
			Kind:    execErr.Kind,
			Message: logging.SanitizeError(execErr.Cause),
			Field:   execErr.Field,
			Entity:  execErr.Entity,
			Cause:   err,
		}
		if errors.Is(execErr.Cause, apperrors.ErrReadOnlyViolation) {
			ce.Rule = RuleReadOnly
		}
		return ce
	}

	if ce := classifyPostgres(err); ce != nil {
		return ce
	}
	if ce := classifySQLServer(err); ce != nil {
		return ce
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.NewClassifiedError(models.ErrorKindTimeout, "operation did not finish in time", err)
	}

	if ce := classifyMessage(err); ce != nil {
		return ce
	}
	return models.NewClassifiedError(models.ErrorKindInternal, logging.SanitizeError(err), err)
}

func classifyPostgres(err error) *models.ClassifiedError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}

	ce := &models.ClassifiedError{Message: pgErr.Message, Cause: err}
	switch pgErr.Code {
	case pgUndefinedColumn:
		ce.Kind = models.ErrorKindUnknownField
		ce.Field = pgErr.ColumnName
		if ce.Field == "" {
			ce.Field = firstMatch(pgColumnPattern, pgErr.Message)
		}
		ce.Field = unqualify(ce.Field)
	case pgUndefinedTable:
		ce.Kind = models.ErrorKindUnknownEntityRef
		ce.Entity = pgErr.TableName
		if ce.Entity == "" {
			ce.Entity = firstMatch(pgRelationPattern, pgErr.Message)
		}
	case pgSyntaxError, pgUndefinedFunction, pgAmbiguousColumn, pgGroupingError,
		pgDatatypeMismatch, pgInvalidTextRepresentation:
		ce.Kind = models.ErrorKindSyntaxError
	case pgQueryCanceled:
		ce.Kind = models.ErrorKindTimeout
	case pgReadOnlyTransaction:
		ce.Kind = models.ErrorKindPlanRejected
		ce.Rule = RuleReadOnly
	default:
		ce.Kind = models.ErrorKindInternal
	}
	return ce
}

func classifySQLServer(err error) *models.ClassifiedError {
	var msErr sqlServerError
	if !errors.As(err, &msErr) {
		return nil
	}

	msg := msErr.Error()
	ce := &models.ClassifiedError{Message: msg, Cause: err}
	switch msErr.SQLErrorNumber() {
	case mssqlInvalidColumn:
		ce.Kind = models.ErrorKindUnknownField
		ce.Field = unqualify(firstMatch(invalidColumnMsg, msg))
	case mssqlInvalidObject:
		ce.Kind = models.ErrorKindUnknownEntityRef
		ce.Entity = unqualify(firstMatch(invalidObjectMsg, msg))
	case mssqlSyntaxNear, mssqlSyntaxKeyword:
		ce.Kind = models.ErrorKindSyntaxError
	default:
		ce.Kind = models.ErrorKindInternal
	}
	return ce
}

func classifyMessage(err error) *models.ClassifiedError {
	msg := err.Error()
	ce := &models.ClassifiedError{Message: logging.SanitizeError(err), Cause: err}

	for _, re := range []*regexp.Regexp{unknownColumnMsg, invalidColumnMsg, pgColumnPattern} {
		if field := firstMatch(re, msg); field != "" {
			ce.Kind = models.ErrorKindUnknownField
			ce.Field = unqualify(field)
			return ce
		}
	}
	for _, re := range []*regexp.Regexp{missingTableMsg, invalidObjectMsg, pgRelationPattern} {
		if entity := firstMatch(re, msg); entity != "" {
			ce.Kind = models.ErrorKindUnknownEntityRef
			ce.Entity = unqualify(entity)
			return ce
		}
	}
	if syntaxErrorPattern.MatchString(msg) {
		ce.Kind = models.ErrorKindSyntaxError
		return ce
	}
	if strings.Contains(msg, "statement timeout") {
		ce.Kind = models.ErrorKindTimeout
		return ce
	}
	return nil
}

func firstMatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}

// unqualify strips a table or schema qualifier: "so.phone" becomes "phone".
func unqualify(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
