package internal

import (
	"fmt"

	"github.com/nguyengg/zipr/util"
)

// EntryTag creates a consistent prefix for log lines about the i-th archive entry, truncating long names.
func EntryTag(i int, name string) string {
	return fmt.Sprintf(`[%d] "%s" - `, i, util.TruncateRightWithSuffix(name, 30, "..."))
}
