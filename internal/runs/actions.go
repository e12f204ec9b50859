package runs

import (
	"context"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/errors"
)

// actionStatus maps triage actions to the resulting issue status. COMMENT
// logs without a status change.
var actionStatus = map[string]docmodel.IssueStatus{
	"ACCEPT": docmodel.IssueAccepted,
	"IGNORE": docmodel.IssueIgnored,
	"FIX":    docmodel.IssueFixed,
}

// ApplyIssueAction records a triage action and applies its status
// transition. Returns the updated issue.
func (s *Service) ApplyIssueAction(ctx context.Context, issueID int64, action, comment string, userID *int64) (*docmodel.Issue, error) {
	action = strings.ToUpper(strings.TrimSpace(action))
	status, known := actionStatus[action]
	if !known && action != "COMMENT" {
		return nil, errors.Newf(errors.CategoryValidation, errors.SeverityError,
			"unknown action %q, want ACCEPT, IGNORE, FIX or COMMENT", action)
	}
	if _, err := s.st.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}

	if known {
		if err := s.st.UpdateIssueStatus(ctx, issueID, status); err != nil {
			return nil, err
		}
	}
	err := s.st.InsertIssueAction(ctx, &docmodel.IssueAction{
		IssueID: issueID,
		Action:  action,
		Comment: comment,
		UserID:  userID,
	})
	if err != nil {
		return nil, err
	}
	return s.st.GetIssue(ctx, issueID)
}
