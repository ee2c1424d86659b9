// Package bridge carries the postMessage-style event protocol between the
// embedded widget and its host page. Neither side trusts the other's origin;
// inbound payloads are validated before they touch widget state.
package bridge

// Inbound event types (host page to widget).
const (
	EventActiveService   = "ACTIVE_SERVICE"
	EventActiveServiceID = "ACTIVE_SERVICE_ID"
	EventActiveUser      = "ACTIVE_USER"
	EventActiveUserID    = "ACTIVE_USER_ID"
	EventSearchQuery     = "SEARCH_QUERY"
)

// Outbound event types (widget to host page).
const (
	EventServiceUpdated            = "SERVICE_UPDATED"
	EventServiceCategoryUpdated    = "SERVICE_CATEGORY_UPDATED"
	EventServiceDescriptionUpdated = "SERVICE_DESCRIPTION_UPDATED"
	EventPackageUpdated            = "PACKAGE_UPDATED"
	EventUserUpdated               = "USER_UPDATED"
	EventIframeReady               = "LEMONS_IFRAME_READY"
	EventViewOffer                 = "VIEW_OFFER"
)
