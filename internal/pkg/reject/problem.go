package reject

// Problem is the JSON error document returned by every handler. Error and
// Details mirror Title and Detail for clients that read the short form.
type Problem struct {
	Error   string            `json:"error,omitempty"`
	Details string            `json:"details,omitempty"`
	Title   string            `json:"title,omitempty"`
	Status  int               `json:"status,omitempty"`
	Detail  string            `json:"detail,omitempty"`
	Code    string            `json:"code,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

func NewProblem() *Problem {
	return &Problem{}
}

func (p *Problem) WithTitle(title string) *Problem {
	p.Title = title
	return p
}

func (p *Problem) WithStatus(status int) *Problem {
	p.Status = status
	return p
}

func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

func (p *Problem) WithCode(code string) *Problem {
	p.Code = code
	return p
}

func (p *Problem) WithParam(key string, value string) *Problem {
	if p.Params == nil {
		p.Params = map[string]string{}
	}
	p.Params[key] = value
	return p
}

func (p *Problem) Build() Problem {
	p.Error = p.Title
	p.Details = p.Detail
	return *p
}
