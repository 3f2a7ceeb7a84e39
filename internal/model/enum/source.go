package enum

// Source names an ingestion source. The name doubles as the stats file stem.
type Source uint8

const (
	_source_beg Source = iota
	SourceEquity
	SourceRelation
	SourceStream
	_source_end
)

func (s Source) IsAvailable() bool {
	return s > _source_beg && s < _source_end
}

func (s Source) String() string {
	switch s {
	case SourceEquity:
		return "equity"
	case SourceRelation:
		return "relation"
	case SourceStream:
		return "mq"
	default:
		return ""
	}
}
