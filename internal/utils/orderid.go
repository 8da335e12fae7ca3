package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateOrderID returns ORD-YYYYMMDD-XXXXXXXX with an uppercase random suffix.
func GenerateOrderID() string {
	now := time.Now().UTC()
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])

	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
