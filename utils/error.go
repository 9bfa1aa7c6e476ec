package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorNotOnLedger is returned by ledger clients when no record exists for a VIN.
var ErrorNotOnLedger = errors.New("record not found on ledger")

var ErrorInvalidIdentifiers = errors.New("at least one identifier is required")
