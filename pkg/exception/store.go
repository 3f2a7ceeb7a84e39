package exception

import "github.com/yanun0323/errors"

// Store errors
var (
	ErrTransientStore       = errors.New("store: transient failure")
	ErrDuplicateTransaction = errors.New("store: duplicate transaction")
	ErrShardWriterAborted   = errors.New("bulk: shard writer aborted")
	ErrReaderAborted        = errors.New("bulk: reader aborted")
)
