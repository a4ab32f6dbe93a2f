package telegram

import (
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Callback action constants.
const (
	actionStatus = "status" // status:<run id>
	actionItems  = "items"  // items:<run id>:<page>
)

var errBadCallback = errors.New("malformed callback data")

// callbackData represents structured callback data.
type callbackData struct {
	Action string
	Params []string
	Raw    string
}

// encode creates callback string.
func (cd callbackData) encode() string {
	if len(cd.Params) == 0 {
		return cd.Action
	}
	return cd.Action + ":" + strings.Join(cd.Params, ":")
}

// decodeCallback parses callback data string.
func decodeCallback(data string) callbackData {
	parts := strings.Split(data, ":")
	return callbackData{
		Action: parts[0],
		Params: parts[1:],
		Raw:    data,
	}
}

// runID returns the run referenced by the first parameter.
func (cd callbackData) runID() (uuid.UUID, error) {
	if len(cd.Params) == 0 {
		return uuid.Nil, errBadCallback
	}
	return uuid.Parse(cd.Params[0])
}

// page returns the zero-based page carried by the second parameter.
func (cd callbackData) page() (int, error) {
	if len(cd.Params) < 2 {
		return 0, errBadCallback
	}
	p, err := strconv.Atoi(cd.Params[1])
	if err != nil || p < 0 {
		return 0, errBadCallback
	}
	return p, nil
}

// buildStatusCallback builds callback data for refreshing a run status.
func buildStatusCallback(id uuid.UUID) string {
	return callbackData{Action: actionStatus, Params: []string{id.String()}}.encode()
}

// buildItemsCallback builds callback data for opening one accepted item of a run.
func buildItemsCallback(id uuid.UUID, page int) string {
	return callbackData{
		Action: actionItems,
		Params: []string{id.String(), strconv.Itoa(page)},
	}.encode()
}
