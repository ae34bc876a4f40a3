package utils

import (
	"fmt"

	"github.com/google/uuid"
)

func GenerateSessionID() string {
	return fmt.Sprintf("sess_%s", uuid.NewString())
}

func GenerateOrderID() string {
	return fmt.Sprintf("ord_%s", uuid.NewString())
}

func GenerateEventRecordID() string {
	return fmt.Sprintf("evt_%s", uuid.NewString())
}
