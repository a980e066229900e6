package config

import (
	"io"

	logx "cuckoo/pkg/logx"
)

func newTestLogger(w io.Writer) logx.Logger { return logx.NewWriter(w, "debug") }
