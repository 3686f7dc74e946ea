package conversation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type Deployment struct {
	OrgID          string `json:"orgId" yaml:"orgId"`
	DeploymentName string `json:"deploymentName" yaml:"deploymentName"`
	MessagingURL   string `json:"messagingUrl" yaml:"messagingUrl"`
}

// Validator decides whether deployment details are acceptable before any
// request is made.
type Validator func(Deployment) error

// DefaultValidator requires every field and an absolute URL.
func DefaultValidator(d Deployment) error {
	var errs []error
	if strings.TrimSpace(d.OrgID) == "" {
		errs = append(errs, errors.New("organization id is required"))
	}
	if strings.TrimSpace(d.DeploymentName) == "" {
		errs = append(errs, errors.New("deployment name is required"))
	}
	if strings.TrimSpace(d.MessagingURL) == "" {
		errs = append(errs, errors.New("messaging url is required"))
	} else if u, err := url.Parse(d.MessagingURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("messaging url %q is not absolute", d.MessagingURL))
	}
	return errors.Join(errs...)
}

// StrictValidator additionally requires a 15 or 18 character organization id
// starting with 00D and an https messaging URL.
func StrictValidator(d Deployment) error {
	if err := DefaultValidator(d); err != nil {
		return err
	}
	var errs []error
	if n := len(d.OrgID); (n != 15 && n != 18) || !strings.HasPrefix(d.OrgID, "00D") {
		errs = append(errs, fmt.Errorf("organization id %q is not a valid org id", d.OrgID))
	}
	if u, _ := url.Parse(d.MessagingURL); u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("messaging url %q must use https", d.MessagingURL))
	}
	return errors.Join(errs...)
}
