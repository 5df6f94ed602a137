package domain

// Subject types known to the auth core. The resource service owns the
// profiles themselves; this core only embeds whitelisted attributes into
// tokens at issuance.
const SubjectCustomer = "customer"

// Field names accepted from callers when building claims.
const (
	FieldEmail     = "email"
	FieldPhone     = "phone"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
)

// Claims are the identity attributes embedded in a token pair. They are
// fixed per subject type rather than an ad hoc dictionary so downstream
// consumers never see unexpected keys.
type Claims struct {
	SubjectType string
	SubjectID   string

	Email     string
	Phone     string
	FirstName string
	LastName  string
}

// claimWhitelist maps a subject type to the profile fields it may carry.
var claimWhitelist = map[string][]string{
	SubjectCustomer: {FieldEmail, FieldPhone, FieldFirstName, FieldLastName},
}

// BuildClaims constructs the claims for one login. Only whitelisted fields
// for the subject type are copied; unknown fields are dropped, not errored.
// Pure construction, no I/O.
func BuildClaims(subjectType, subjectID string, fields map[string]string) Claims {
	c := Claims{
		SubjectType: subjectType,
		SubjectID:   subjectID,
	}

	for _, name := range claimWhitelist[subjectType] {
		value, ok := fields[name]
		if !ok {
			continue
		}
		switch name {
		case FieldEmail:
			c.Email = value
		case FieldPhone:
			c.Phone = value
		case FieldFirstName:
			c.FirstName = value
		case FieldLastName:
			c.LastName = value
		}
	}

	return c
}
