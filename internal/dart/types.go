package dart

import (
	"fmt"
	"time"
)

// DART response status codes.
const (
	StatusOK              = "000"
	StatusUnregisteredKey = "010"
	StatusDisabledKey     = "011"
	StatusDeniedIP        = "012"
	StatusNoData          = "013"
	StatusFileMissing     = "014"
	StatusRateLimited     = "020"
	StatusInvalidParam    = "100"
	StatusInvalidCorp     = "101"
	StatusMaintenance     = "800"
	StatusUndefined       = "900"
	StatusKeyExpired      = "901"
)

// ReportCode is the reprt_code request parameter.
type ReportCode string

const (
	ReportQ1     ReportCode = "11013"
	ReportHalf   ReportCode = "11012"
	ReportQ3     ReportCode = "11014"
	ReportAnnual ReportCode = "11011"
)

// FSDiv is the fs_div request parameter.
type FSDiv string

const (
	FSDivConsolidated FSDiv = "CFS"
	FSDivSeparate     FSDiv = "OFS"
)

// Envelope carries the status fields every DART JSON response starts with.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SingleAccountsResponse is the fnlttSinglAcntAll.json payload.
type SingleAccountsResponse struct {
	Envelope
	List []AccountItem `json:"list"`
}

// AccountItem is one line of a full financial statement.
type AccountItem struct {
	ReceiptNo        string `json:"rcept_no"`
	ReportCode       string `json:"reprt_code"`
	BusinessYear     string `json:"bsns_year"`
	CorpCode         string `json:"corp_code"`
	StatementDiv     string `json:"sj_div"` // BS, IS, CIS, CF, SCE
	StatementName    string `json:"sj_nm"`
	AccountID        string `json:"account_id"`
	AccountName      string `json:"account_nm"`
	AccountDetail    string `json:"account_detail"`
	CurrentName      string `json:"thstrm_nm"`
	CurrentAmount    string `json:"thstrm_amount"`
	CurrentCumAmount string `json:"thstrm_add_amount"`
	PriorName        string `json:"frmtrm_nm"`
	PriorAmount      string `json:"frmtrm_amount"`
	Order            string `json:"ord"`
	Currency         string `json:"currency"`
}

// CorpCodeEntry is one <list> element of CORPCODE.xml.
type CorpCodeEntry struct {
	CorpCode    string `xml:"corp_code"`
	CorpName    string `xml:"corp_name"`
	CorpEngName string `xml:"corp_eng_name"`
	StockCode   string `xml:"stock_code"`
	ModifyDate  string `xml:"modify_date"`
}

type corpCodeResult struct {
	Status  string          `xml:"status"`
	Message string          `xml:"message"`
	List    []CorpCodeEntry `xml:"list"`
}

// APIError represents a non-200 HTTP response from the DART API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("DART API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// StatusError represents a DART envelope with a non-000 status.
type StatusError struct {
	Status   string
	Message  string
	Endpoint string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("DART status %s: %s (endpoint: %s)", e.Status, e.Message, e.Endpoint)
}

// NoData reports whether the upstream has no filing for the request.
func (e *StatusError) NoData() bool {
	return e.Status == StatusNoData
}

// KeyProblem reports whether the status rejects the API key itself.
func (e *StatusError) KeyProblem() bool {
	switch e.Status {
	case StatusUnregisteredKey, StatusDisabledKey, StatusDeniedIP, StatusKeyExpired:
		return true
	}
	return false
}

// RateLimitError represents a rate limit error, either HTTP 429 or status 020.
type RateLimitError struct {
	RetryAfter time.Duration
	Endpoint   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("DART rate limit exceeded on %s, retry after %v", e.Endpoint, e.RetryAfter)
}
