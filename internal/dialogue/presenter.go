package dialogue

import "github.com/antoniostano/chatdesk/internal/session"

// NopPresenter discards notifications.
type NopPresenter struct{}

func (NopPresenter) Render(session.Turn) {}
func (NopPresenter) SetBusy(bool)        {}
func (NopPresenter) ClearAll()           {}
