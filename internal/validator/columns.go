package validator

import "strings"

// Field is a canonical input column.
type Field string

const (
	FieldSurname     Field = "surname"
	FieldFirstName   Field = "first_name"
	FieldBirthDate   Field = "birth_date"
	FieldPassport    Field = "passport_number"
	FieldNationality Field = "nationality"
	FieldArrival     Field = "arrival_date"
	FieldDeparture   Field = "departure_date"
	FieldVisa        Field = "visa_number"
	FieldHomeAddress Field = "home_address"
	FieldPurpose     Field = "purpose"
	FieldNote        Field = "note"
)

// RequiredFields must be present as columns for an input table to be usable.
var RequiredFields = []Field{
	FieldSurname, FieldFirstName, FieldBirthDate, FieldPassport,
	FieldNationality, FieldArrival, FieldDeparture,
}

// columnAliases lists the header spellings operators actually use.
var columnAliases = map[Field][]string{
	FieldSurname:     {"Příjmení", "prijmeni", "PRIJMENI", "Surname"},
	FieldFirstName:   {"Jméno", "jmeno", "JMENO", "Name", "First Name"},
	FieldBirthDate:   {"Datum narození", "datum_narozeni", "DATUM_NAROZENI", "Birth Date", "Date of Birth"},
	FieldPassport:    {"Číslo pasu", "cislo_pasu", "CISLO_PASU", "Passport Number", "Passport"},
	FieldNationality: {"Státní občanství", "statni_obcanstvi", "STATNI_OBCANSTVI", "Nationality", "Občanství"},
	FieldArrival:     {"Datum příjezdu", "datum_prijezdu", "DATUM_PRIJEZDU", "Arrival Date", "Check-in", "Ubytování od kdy"},
	FieldDeparture:   {"Datum odjezdu", "datum_odjezdu", "DATUM_ODJEZDU", "Departure Date", "Check-out", "Ubytování do kdy"},
	FieldVisa:        {"Číslo víza", "cislo_viza", "CISLO_VIZA", "Visa Number"},
	FieldHomeAddress: {"Bydliště v domovské zemi", "bydliste_domov", "BYDLISTE_DOMOV", "Home Address", "Adresa ubytování"},
	FieldPurpose:     {"Účel pobytu", "ucel_pobytu", "UCEL_POBYTU", "Purpose of Stay"},
	FieldNote:        {"Poznámka", "poznamka", "POZNAMKA", "Note", "Notes"},
}

var aliasIndex = buildAliasIndex()

func buildAliasIndex() map[string]Field {
	idx := make(map[string]Field)
	for f, aliases := range columnAliases {
		idx[strings.ToLower(string(f))] = f
		for _, a := range aliases {
			idx[strings.ToLower(a)] = f
		}
	}
	return idx
}

// ColumnFor maps an input header to its canonical field.
func ColumnFor(header string) (Field, bool) {
	f, ok := aliasIndex[strings.ToLower(strings.TrimSpace(header))]
	return f, ok
}

// MissingRequired returns the required fields absent from the header set.
func MissingRequired(present map[Field]bool) []Field {
	var missing []Field
	for _, f := range RequiredFields {
		if !present[f] {
			missing = append(missing, f)
		}
	}
	return missing
}
