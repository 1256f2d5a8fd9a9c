package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[SetTimeMessage]      = (*SetTimeCommand)(nil)
	_ gocmd.Commander[AddTimeMessage]      = (*AddTimeCommand)(nil)
	_ gocmd.Commander[RemoveTimeMessage]   = (*RemoveTimeCommand)(nil)
	_ gocmd.Commander[ClearTimeMessage]    = (*ClearTimeCommand)(nil)
	_ gocmd.Commander[PauseTimeMessage]    = (*PauseTimeCommand)(nil)
	_ gocmd.Commander[ResumeTimeMessage]   = (*ResumeTimeCommand)(nil)
	_ gocmd.Commander[AdjustCreditMessage] = (*AdjustCreditCommand)(nil)
	_ gocmd.Commander[ShowTimeMessage]     = (*ShowTimeCommand)(nil)
)
