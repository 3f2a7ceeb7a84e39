package record

import (
	"strings"

	"equity/internal/model"
	"equity/pkg/scanner"
)

const relationFieldCount = 2

// Relation is a validated "managerCode|customerNo" line.
type Relation struct {
	ManagerCode string
	CustomerNo  string
}

// ParseRelation validates a relation line. The full-width bar is accepted
// as a delimiter too.
func ParseRelation(line string) (Relation, error) {
	if strings.Contains(line, fullWidthDelimiter) {
		line = strings.ReplaceAll(line, fullWidthDelimiter, string(Delimiter))
	}
	f, err := splitFields(line, relationFieldCount)
	if err != nil {
		return Relation{}, err
	}

	manager := f[0]
	if len(manager) > maxManagerCodeLen || !scanner.AllAlnum(manager) {
		return Relation{}, malformed("managerCode", "")
	}
	customerNo, err := parseCustomerNo(f[1])
	if err != nil {
		return Relation{}, err
	}

	return Relation{
		ManagerCode: strings.ToUpper(manager),
		CustomerNo:  customerNo,
	}, nil
}

func (r Relation) AppendCanonical(dst []byte) []byte {
	dst = append(dst, r.ManagerCode...)
	dst = append(dst, Delimiter)
	dst = append(dst, r.CustomerNo...)
	return append(dst, '\n')
}

func (r Relation) Model() model.Relation {
	return model.Relation{ManagerCode: r.ManagerCode, CustomerNo: r.CustomerNo}
}
