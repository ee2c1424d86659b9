// Package record holds the marketplace domain types the widget works with and
// the mapping from raw object-store payloads into those types. The remote
// store is schemaless from our point of view, so every mapping here is
// tolerant of missing or oddly-typed fields.
package record

// Category identifies a record category addressable in the remote store.
type Category string

const (
	CategoryService Category = "service"
	CategoryPackage Category = "package"
	CategoryUser    Category = "user"
)

// Service is a marketplace listing.
type Service struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Price        float64  `json:"price"`
	DeliveryDays float64  `json:"delivery_days"`
	PackageIDs   []string `json:"package_ids,omitempty"`
}

// Package is a purchasable tier of a Service. It belongs to exactly one
// service; the store expresses the relationship either as a package-id list
// on the service or as a reverse foreign key on the package.
type Package struct {
	ID          string   `json:"id"`
	ServiceID   string   `json:"service_id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"package_description"`
	Price       float64  `json:"price"`
	Delivery    string   `json:"delivery"`
	Revisions   string   `json:"revisions"`
	Included    []string `json:"included,omitempty"`
}

// User is a provider profile restricted to the safe allow-list of fields.
// Anything outside this struct (email, admin flags, photo, message threads)
// must never be read into model context or accepted by an update.
type User struct {
	ID         string   `json:"id"`
	FirstName  string   `json:"first_name"`
	LastName   string   `json:"last_name"`
	Bio        string   `json:"bio"`
	Experience string   `json:"experience"`
	Tagline    string   `json:"tagline"`
	Skills     []string `json:"skills,omitempty"`
}

// UserFieldAllowList enumerates the remote field names the widget may read or
// write on a user record.
var UserFieldAllowList = []string{
	"first_name",
	"last_name",
	"bio",
	"experience",
	"tagline",
	"skills",
}

// UserFieldAllowed reports whether a remote user field may be read or written.
func UserFieldAllowed(name string) bool {
	for _, allowed := range UserFieldAllowList {
		if name == allowed {
			return true
		}
	}
	return false
}

// MaxTitleLength bounds titles set through the title-improvement operation.
const MaxTitleLength = 80
