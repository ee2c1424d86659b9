package record

import (
	"regexp"
	"strconv"
	"strings"
)

// Raw is an untyped record payload as returned by the remote store.
type Raw = map[string]any

// ServiceFromRaw maps a raw object-store payload into a Service.
func ServiceFromRaw(raw Raw) Service {
	svc := Service{
		ID:           rawString(raw, "_id", "id"),
		Title:        rawString(raw, "title", "Title"),
		Description:  rawString(raw, "description", "Description"),
		Category:     rawString(raw, "category", "Category"),
		Price:        rawNumber(raw, "price"),
		DeliveryDays: rawNumber(raw, "delivery_days"),
	}
	// The store expresses the service→package relation either as an explicit
	// id list on the service or not at all (reverse FK on the package).
	for _, key := range []string{"packages", "Packages", "package_ids"} {
		if ids := rawStringList(raw, key); len(ids) > 0 {
			svc.PackageIDs = ids
			break
		}
	}
	return svc
}

// PackageFromRaw maps a raw object-store payload into a Package.
func PackageFromRaw(raw Raw) Package {
	return Package{
		ID:          rawString(raw, "_id", "id"),
		ServiceID:   rawString(raw, "service", "Service", "service_id"),
		Name:        rawString(raw, "name", "title", "Name"),
		Description: rawString(raw, "package_description", "description"),
		Price:       rawNumber(raw, "price"),
		Delivery:    rawString(raw, "delivery", "delivery_time"),
		Revisions:   rawString(raw, "revisions"),
		Included:    rawStringList(raw, "included", "whats_included"),
	}
}

// UserFromRaw maps a raw object-store payload into a User. Only allow-listed
// fields are read; everything else in the payload is dropped here so it can
// never reach model context.
func UserFromRaw(raw Raw) User {
	return User{
		ID:         rawString(raw, "_id", "id"),
		FirstName:  rawString(raw, "first_name", "firstName"),
		LastName:   rawString(raw, "last_name", "lastName"),
		Bio:        rawString(raw, "bio"),
		Experience: rawString(raw, "experience"),
		Tagline:    rawString(raw, "tagline"),
		Skills:     rawStringList(raw, "skills"),
	}
}

// ServiceFromSearchHit maps a search-index hit into a Service, deriving price
// and delivery_days as the minimum over the hit's nested package array.
func ServiceFromSearchHit(hit Raw) Service {
	svc := Service{
		ID:          rawString(hit, "objectID", "_id", "id"),
		Title:       rawString(hit, "title"),
		Description: rawString(hit, "description"),
		Category:    rawString(hit, "category"),
	}

	packages, _ := hit["packages"].([]any)
	minPrice := 0.0
	minDays := 0.0
	for _, p := range packages {
		pm, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if price := rawNumber(pm, "price"); price > 0 && (minPrice == 0 || price < minPrice) {
			minPrice = price
		}
		days := rawNumber(pm, "delivery_days")
		if days == 0 {
			days = ParseDeliveryDays(rawString(pm, "delivery", "delivery_time"))
		}
		if days > 0 && (minDays == 0 || days < minDays) {
			minDays = days
		}
	}
	svc.Price = minPrice
	svc.DeliveryDays = minDays
	return svc
}

var leadingNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParseDeliveryDays extracts a day count from free text like "3 days" or
// "up to 5 business days". Returns 0 when no number is present.
func ParseDeliveryDays(text string) float64 {
	match := leadingNumber.FindString(text)
	if match == "" {
		return 0
	}
	n, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return n
}

// SplitList accepts either a native string list or a comma/newline delimited
// string and returns the trimmed entries, dropping empties.
func SplitList(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		return trimList(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return trimList(out)
	case string:
		sep := ","
		if strings.Contains(v, "\n") {
			sep = "\n"
		}
		return trimList(strings.Split(v, sep))
	default:
		return nil
	}
}

func trimList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func rawString(raw Raw, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func rawNumber(raw Raw, keys ...string) float64 {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case string:
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return parsed
			}
		}
	}
	return 0
}

func rawStringList(raw Raw, keys ...string) []string {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if list := SplitList(v); len(list) > 0 {
				return list
			}
		}
	}
	return nil
}
