//go:build !linux

package delve

import "syscall"

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}
