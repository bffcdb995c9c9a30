package ledger

type toggleCellRequest struct {
	Member string `json:"member" validate:"required,max=200"`
	Slot   string `json:"slot" validate:"required,max=10"`
}

type adjustRateRequest struct {
	Slot   string  `json:"slot" validate:"required,max=10"`
	Amount float64 `json:"amount" validate:"gte=0"`
}

type adjustHoaRateRequest struct {
	Amount float64 `json:"amount" validate:"gte=0"`
}

type verifyCommitRequest struct {
	Password string `json:"password" validate:"required"`
}

type addMemberRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type registerResidentRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type sessionResponse struct {
	State         State    `json:"state"`
	SelectedCells []string `json:"selected_cells"`
	Warning       string   `json:"warning,omitempty"`
}

type periodResponse struct {
	Period        string    `json:"period"`
	Record        Record    `json:"record"`
	Rates         RateTable `json:"rates"`
	Totals        Totals    `json:"totals"`
	TotalsDisplay struct {
		Dues string `json:"dues"`
		Fee  string `json:"fee"`
	} `json:"totals_display"`
}
