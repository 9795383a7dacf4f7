package carerecipient

import (
	"fmt"
	"strings"
)

// User-facing texts shown by the admin console.
const (
	MsgInvalidOrEmptyFile     = "You must provide a valid CSV file"
	MsgFileCorruptedOrBinary  = "The CSV file is corrupted or binary"
	MsgInvalidColumnSet       = "You must provide a valid CSV file with the following columns"
	MsgLineCountExceeded      = "The CSV file line count exceeds maximum number of lines"
	MsgFileImported           = "Your CSV file has been imported. New Care Recipients created"
	MsgUnknownLocation        = "The care provider location does not exist"
	MsgSubscriptionNotDeleted = "could not delete the subscription"
)

func invalidColumnSetMessage() string {
	return MsgInvalidColumnSet + ": " + strings.Join(ImportColumns, ", ")
}

func lineCountExceededMessage(max int) string {
	return fmt.Sprintf("%s: %d", MsgLineCountExceeded, max)
}

func importedMessage(created int) string {
	return fmt.Sprintf("%s: %d", MsgFileImported, created)
}
