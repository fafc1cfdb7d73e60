package zitadel

// Wire types of the management API. Only the fields used here are declared.

const (
	stateInactive = "USER_STATE_INACTIVE"
	// Locked accounts still count as enabled. Lockout is left to the provider.
	stateLocked = "USER_STATE_LOCKED"

	typeHuman = "TYPE_HUMAN"
)

type listQuery struct {
	Offset string `json:"offset"`
	Limit  int    `json:"limit"`
	Asc    bool   `json:"asc"`
}

type listDetails struct {
	// TotalResult is an int64 encoded as a JSON string.
	TotalResult any `json:"totalResult"`
}

type searchRequest struct {
	Query   listQuery        `json:"query"`
	Queries []map[string]any `json:"queries,omitempty"`
}

type userSearchResponse struct {
	Details listDetails `json:"details"`
	Result  []user      `json:"result"`
}

type user struct {
	ID                 string `json:"id"`
	State              string `json:"state"`
	UserName           string `json:"userName"`
	PreferredLoginName string `json:"preferredLoginName"`
	Human              *human `json:"human"`
}

type human struct {
	Profile profile `json:"profile"`
	Email   email   `json:"email"`
	Phone   phone   `json:"phone"`
}

type profile struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	NickName    string `json:"nickName"`
	DisplayName string `json:"displayName"`
}

type email struct {
	Email           string `json:"email"`
	IsEmailVerified bool   `json:"isEmailVerified"`
}

type phone struct {
	Phone           string `json:"phone"`
	IsPhoneVerified bool   `json:"isPhoneVerified"`
}

type grantSearchResponse struct {
	Details listDetails `json:"details"`
	Result  []struct {
		UserID string `json:"userId"`
	} `json:"result"`
}

type metadataSearchResponse struct {
	Result []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"result"`
}

type importHumanRequest struct {
	UserName string  `json:"userName"`
	Profile  profile `json:"profile"`
	Email    email   `json:"email"`
	Phone    *phone  `json:"phone,omitempty"`
}

type importHumanResponse struct {
	UserID string `json:"userId"`
}

type metadataRequest struct {
	Value string `json:"value"`
}

type grantRequest struct {
	ProjectID string   `json:"projectId"`
	RoleKeys  []string `json:"roleKeys"`
}

type idpLink struct {
	IdpID    string `json:"idpId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type idpLinkRequest struct {
	IdpLink idpLink `json:"idpLink"`
}
