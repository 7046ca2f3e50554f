package adminhttp

type keysResponse struct {
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
}

type clearResponse struct {
	All     bool `json:"all,omitempty"`
	Removed int  `json:"removed"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
