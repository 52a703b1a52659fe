package drmcolor

import "github.com/gogpu/drmcolor/kms"

func init() {
	subLoggers = append(subLoggers, kms.SetLogger)
}
