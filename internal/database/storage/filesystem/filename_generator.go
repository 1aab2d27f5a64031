package filesystem

import (
	"strconv"
	"strings"
	"time"
)

func generateFileName() string {
	return "wal_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + ".log"
}

func checkFileName(name string) bool {
	return strings.HasPrefix(name, "wal_") && strings.HasSuffix(name, ".log")
}
