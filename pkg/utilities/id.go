package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewSnowflakeID generates a snowflake ID string. See NewSnowflakeInt64.
func NewSnowflakeID() string {
	return strconv.FormatInt(NewSnowflakeInt64(), 10)
}

// NewSnowflakeInt64 generates a snowflake ID using a process-wide node whose
// ID comes from the SNOWFLAKE_NODE environment variable (default 1). The node
// is shared so that IDs generated within the same millisecond stay unique.
func NewSnowflakeInt64() int64 {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if v, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64); err == nil {
			nodeID = v
		}
		n, err := snowflake.NewNode(nodeID)
		if err != nil {
			n, _ = snowflake.NewNode(1)
		}
		node = n
	})
	return node.Generate().Int64()
}
