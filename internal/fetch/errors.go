package fetch

import "errors"

var (
	// ErrURLBlocked means the URL failed the egress policy.
	ErrURLBlocked = errors.New("url blocked by egress policy")
	// ErrAntibotDetected means the page is an anti-bot challenge, not content.
	ErrAntibotDetected = errors.New("anti-bot challenge page")
	// ErrNotPDF means the downloaded body is not a PDF document.
	ErrNotPDF = errors.New("response body is not a PDF")
	// ErrPDFNotFound means the browser fetch found no document link on the page.
	ErrPDFNotFound = errors.New("no PDF link found on page")
	// ErrBodyTooLarge means the response exceeded the download size limit.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")
)
