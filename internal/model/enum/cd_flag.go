package enum

// CDFlag marks a transaction as credit or debit.
type CDFlag uint8

const (
	_cdflag_beg CDFlag = iota
	CDFlagCredit
	CDFlagDebit
	_cdflag_end
)

func (f CDFlag) IsAvailable() bool {
	return f > _cdflag_beg && f < _cdflag_end
}

// ParseCDFlag accepts "C" or "D" in any case.
func ParseCDFlag(s string) (CDFlag, bool) {
	switch s {
	case "C", "c":
		return CDFlagCredit, true
	case "D", "d":
		return CDFlagDebit, true
	default:
		return 0, false
	}
}

func (f CDFlag) String() string {
	switch f {
	case CDFlagCredit:
		return "C"
	case CDFlagDebit:
		return "D"
	default:
		return ""
	}
}
