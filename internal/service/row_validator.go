package service

import (
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"member-onboarding/internal/models"
)

const (
	maxMemberIDLength = 64
	maxNameLength     = 255
	maxEmailLength    = 254
)

var (
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	memberIDPattern = regexp.MustCompile(`^[A-Za-z0-9_/-]+$`)
	phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// NormalizeHeader folds a header cell to its column key.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.Fields(h), "_")
}

// NormalizePhone strips the separators operators commonly type.
func NormalizePhone(p string) string {
	return phoneSeparators.Replace(strings.TrimSpace(p))
}

// NormalizeEmail lowercases an address so identity comparison is case blind.
func NormalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// CheckHeaders maps every known column to its cell index. Missing required
// or unknown columns reject the whole file.
func CheckHeaders(headers []string) (map[string]int, error) {
	allowed := map[string]bool{}
	for _, c := range models.RequiredColumns {
		allowed[c] = true
	}
	for _, c := range models.OptionalColumns {
		allowed[c] = true
	}

	index := map[string]int{}
	fileErr := &models.FileError{}
	var duplicated []string
	for i, h := range headers {
		key := NormalizeHeader(h)
		if key == "" {
			continue
		}
		if !allowed[key] {
			fileErr.Unknown = append(fileErr.Unknown, strings.TrimSpace(h))
			continue
		}
		if _, seen := index[key]; seen {
			duplicated = append(duplicated, key)
			continue
		}
		index[key] = i
	}

	for _, c := range models.RequiredColumns {
		if _, ok := index[c]; !ok {
			fileErr.Missing = append(fileErr.Missing, c)
		}
	}
	if len(duplicated) > 0 {
		sort.Strings(duplicated)
		fileErr.Reason = "duplicate columns: " + strings.Join(duplicated, ", ")
	}

	if len(fileErr.Missing) > 0 || len(fileErr.Unknown) > 0 || fileErr.Reason != "" {
		return nil, fileErr
	}
	return index, nil
}

// ExtractRows maps raw cells onto member rows without judging them.
func ExtractRows(table models.RawTable) ([]models.MemberRow, error) {
	index, err := CheckHeaders(table.Headers)
	if err != nil {
		return nil, err
	}

	get := func(cells []string, column string) string {
		i, ok := index[column]
		if !ok || i >= len(cells) {
			return ""
		}
		return capCell(strings.TrimSpace(cells[i]))
	}

	rows := make([]models.MemberRow, 0, len(table.Rows))
	for _, raw := range table.Rows {
		rows = append(rows, models.MemberRow{
			RowNumber: raw.Number,
			MemberID:  get(raw.Cells, models.ColumnMemberID),
			Name:      get(raw.Cells, models.ColumnName),
			Phone:     get(raw.Cells, models.ColumnPhone),
			Email:     get(raw.Cells, models.ColumnEmail),
		})
	}
	return rows, nil
}

func capCell(s string) string {
	if utf8.RuneCountInString(s) <= models.MaxCellLength {
		return s
	}
	return string([]rune(s)[:models.MaxCellLength])
}

// ValidateRow checks the required fields and formats of one row and
// returns the normalized row alongside any errors.
func ValidateRow(row models.MemberRow) (models.MemberRow, []models.RowError) {
	var errs []models.RowError
	fail := func(field, value, reason string) {
		errs = append(errs, models.RowError{
			Row:      row.RowNumber,
			MemberID: row.MemberID,
			Field:    field,
			Value:    value,
			Reason:   reason,
			Kind:     models.KindValidation,
		})
	}

	row.MemberID = strings.TrimSpace(row.MemberID)
	switch {
	case row.MemberID == "":
		fail(models.ColumnMemberID, row.MemberID, "member_id is required")
	case len(row.MemberID) > maxMemberIDLength:
		fail(models.ColumnMemberID, row.MemberID, fmt.Sprintf("member_id cannot exceed %d characters", maxMemberIDLength))
	case !memberIDPattern.MatchString(row.MemberID):
		fail(models.ColumnMemberID, row.MemberID, "member_id may only contain letters, digits, '-', '_' and '/'")
	}

	row.Name = strings.Join(strings.Fields(row.Name), " ")
	if row.Name == "" {
		fail(models.ColumnName, row.Name, "name is required")
	} else if len(row.Name) > maxNameLength {
		fail(models.ColumnName, row.Name, fmt.Sprintf("name cannot exceed %d characters", maxNameLength))
	}

	raw := row.Phone
	row.Phone = NormalizePhone(row.Phone)
	switch {
	case row.Phone == "":
		fail(models.ColumnPhone, raw, "phone_number is required")
	case !phonePattern.MatchString(row.Phone):
		fail(models.ColumnPhone, raw, "phone_number must be 7 to 15 digits with an optional leading +")
	}

	if strings.TrimSpace(row.Email) != "" {
		raw := row.Email
		row.Email = NormalizeEmail(row.Email)
		switch {
		case len(row.Email) > maxEmailLength:
			fail(models.ColumnEmail, raw, fmt.Sprintf("email cannot exceed %d characters", maxEmailLength))
		case !isPlainAddress(row.Email):
			fail(models.ColumnEmail, raw, "email is not a valid address")
		}
	} else {
		row.Email = ""
	}

	return row, errs
}

// isPlainAddress accepts a bare addr-spec; display names and routes are rejected.
func isPlainAddress(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && strings.Contains(s[at+1:], ".")
}

// ValidateRows runs the header check and every per-row check. File level
// problems are returned as *models.FileError; row problems only exclude
// the offending row.
func ValidateRows(table models.RawTable) ([]models.MemberRow, []models.RowError, error) {
	rows, err := ExtractRows(table)
	if err != nil {
		return nil, nil, err
	}

	valid := make([]models.MemberRow, 0, len(rows))
	var errs []models.RowError
	for _, row := range rows {
		normalized, rowErrs := ValidateRow(row)
		if len(rowErrs) > 0 {
			errs = append(errs, rowErrs...)
			continue
		}
		valid = append(valid, normalized)
	}
	return valid, errs, nil
}
