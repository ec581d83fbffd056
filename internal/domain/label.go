package domain

const (
	LabelInbox     = "INBOX"
	LabelStarred   = "STARRED"
	LabelSent      = "SENT"
	LabelDraft     = "DRAFT"
	LabelTrash     = "TRASH"
	LabelSpam      = "SPAM"
	LabelUnread    = "UNREAD"
	LabelImportant = "IMPORTANT"
)

// folderOrder is the precedence used to pick a folder from a label set.
var folderOrder = []string{LabelInbox, LabelSent, LabelDraft, LabelSpam, LabelTrash}

// FolderFromLabels returns the folder a message lives in, defaulting to INBOX.
func FolderFromLabels(labels []string) string {
	for _, folder := range folderOrder {
		for _, l := range labels {
			if l == folder {
				return folder
			}
		}
	}
	return LabelInbox
}
