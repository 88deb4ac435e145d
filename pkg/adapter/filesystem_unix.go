//go:build !windows

package adapter

import (
	"io/fs"
	"os/user"
	"strconv"
	"syscall"
)

func ownerFromSys(info fs.FileInfo) string {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return ""
	}
	u, err := user.LookupId(strconv.FormatUint(uint64(stat.Uid), 10))
	if err != nil {
		return strconv.FormatUint(uint64(stat.Uid), 10)
	}
	return u.Username
}
