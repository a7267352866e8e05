package xutil

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
)

var ErrLocked = errors.New("xutil: pid file locked by another process")

// pid文件, 持有期间加排它锁, 防止同一目录起两个进程
type FLock struct {
	f    *os.File
	name string
}

func NewFlock(fileName string) (*FLock, error) {
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_RDWR, os.FileMode(0600))
	if err != nil {
		return nil, err
	}
	if err = lockFile(f); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(ErrLocked, err.Error())
	}
	// 拿到锁之后再清空, 不然会抹掉别人的pid
	if err = f.Truncate(0); err == nil {
		_, err = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &FLock{f: f, name: fileName}, nil
}

func (f *FLock) Close() {
	if f.f == nil {
		return
	}
	_ = os.Remove(f.name)
	_ = f.f.Close()
	f.f = nil
}
