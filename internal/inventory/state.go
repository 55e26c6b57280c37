package inventory

import (
	"fmt"

	"github.com/odyssey-erp/stockroom/internal/catalog"
	"github.com/odyssey-erp/stockroom/internal/productform"
	"github.com/odyssey-erp/stockroom/internal/selection"
	"github.com/odyssey-erp/stockroom/internal/shared"
	"github.com/odyssey-erp/stockroom/internal/table"
)

const stateKey = "inventory.state"

// State is the console state of one browser session. It survives the
// redirect that follows every mutation.
type State struct {
	Search    catalog.Criteria `json:"search"`
	Sort      table.Spec       `json:"sort"`
	Page      int              `json:"page"`
	Selection selection.Set    `json:"selection"`
	Form      productform.Form `json:"form"`
	// SubmissionKey identifies the create form currently shown so a resubmit
	// of the same form is detected.
	SubmissionKey string `json:"submissionKey,omitempty"`
}

// LoadState reads the state stored in sess. A session without state yields the zero State.
func LoadState(sess *shared.Session) (State, error) {
	var st State
	if sess == nil {
		return st, shared.ErrSessionMissing
	}
	if _, err := sess.GetJSON(stateKey, &st); err != nil {
		return State{}, fmt.Errorf("decode inventory state: %w", err)
	}
	return st, nil
}

// SaveState writes st into sess.
func SaveState(sess *shared.Session, st State) error {
	if sess == nil {
		return shared.ErrSessionMissing
	}
	return sess.SetJSON(stateKey, st)
}
