package models

import (
	"bytes"
	"encoding/json"
)

// CompanyRef accepts either a plain id or an embedded company document
// carrying an "_id" field.
type CompanyRef string

func (c *CompanyRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = CompanyRef(s)
		return nil
	}

	var doc struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*c = CompanyRef(doc.ID)
	return nil
}

type Employee struct {
	ID         string     `json:"_id,omitempty"`
	EmployeeID string     `json:"employeeId,omitempty"`
	CompanyID  CompanyRef `json:"companyId,omitempty"`
	FirstName  string     `json:"firstName,omitempty"`
	LastName   string     `json:"lastName,omitempty"`
	Email      string     `json:"email,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string   `json:"token"`
	Employee Employee `json:"employee"`
}

// Credentials is what the credential store persists between runs.
type Credentials struct {
	Token    string
	Employee Employee
}
