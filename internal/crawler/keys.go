package crawler

import (
	"fmt"
	"strconv"
	"strings"
)

// VectorKey is the vector-store key of one chunk: page{pageID}#{chunkIndex}.
func VectorKey(pageID int64, chunkIndex int) string {
	return fmt.Sprintf("page%d#%d", pageID, chunkIndex)
}

// VectorKeyPrefix is the namespace shared by every chunk of a page.
func VectorKeyPrefix(pageID int64) string {
	return fmt.Sprintf("page%d#", pageID)
}

// PageIDFromVectorKey recovers the page ID from a key built by VectorKey.
func PageIDFromVectorKey(key string) (int64, bool) {
	rest, ok := strings.CutPrefix(key, "page")
	if !ok {
		return 0, false
	}
	idPart, chunkPart, ok := strings.Cut(rest, "#")
	if !ok || idPart == "" || chunkPart == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	if _, err := strconv.Atoi(chunkPart); err != nil {
		return 0, false
	}
	return id, true
}
