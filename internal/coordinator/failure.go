package coordinator

import "inapppay/internal/models"

// FailureCategory is a diagnostic label for a failed payment. It is only
// logged and recorded; callers always see OutcomeFailed.
type FailureCategory string

const (
	FailureUnknown                           FailureCategory = "unknown"
	FailureClientInvalid                     FailureCategory = "client-invalid"
	FailurePaymentCancelled                  FailureCategory = "payment-cancelled"
	FailurePaymentInvalid                    FailureCategory = "payment-invalid"
	FailurePaymentNotAllowed                 FailureCategory = "payment-not-allowed"
	FailureProductNotAvailable               FailureCategory = "product-not-available"
	FailureCloudServicePermissionDenied      FailureCategory = "cloud-service-permission-denied"
	FailureCloudServiceNetworkFailed         FailureCategory = "cloud-service-network-connection-failed"
	FailureCloudServiceRevoked               FailureCategory = "cloud-service-revoked"
	FailurePrivacyAcknowledgementRequired    FailureCategory = "privacy-acknowledgement-required"
	FailureUnauthorizedRequestData           FailureCategory = "unauthorized-request-data"
	FailureInvalidOfferIdentifier            FailureCategory = "invalid-offer-identifier"
	FailureInvalidSignature                  FailureCategory = "invalid-signature"
	FailureMissingOfferParams                FailureCategory = "missing-offer-params"
	FailureInvalidOfferPrice                 FailureCategory = "invalid-offer-price"
	FailureOverlayCancelled                  FailureCategory = "overlay-cancelled"
	FailureOverlayInvalidConfiguration       FailureCategory = "overlay-invalid-configuration"
	FailureOverlayTimeout                    FailureCategory = "overlay-timeout"
	FailureIneligibleForOffer                FailureCategory = "ineligible-for-offer"
	FailureUnsupportedPlatform               FailureCategory = "unsupported-platform"
	FailureOverlayPresentedInBackgroundScene FailureCategory = "overlay-presented-in-background-scene"
	FailureUnknownError                      FailureCategory = "unknown-error"
)

// ClassifyFailure maps a platform error to a category and a description.
// A nil error or an unrecognised code falls through to FailureUnknownError.
func ClassifyFailure(perr *models.PaymentError) (FailureCategory, string) {
	if perr == nil {
		return FailureUnknownError, "failed without a platform error"
	}
	switch perr.Code {
	case models.ErrUnknown:
		return FailureUnknown, "unknown error, possibly a jailbroken device"
	case models.ErrClientInvalid:
		return FailureClientInvalid, "the current account cannot make purchases"
	case models.ErrPaymentCancelled:
		return FailurePaymentCancelled, "the user cancelled the payment"
	case models.ErrPaymentInvalid:
		return FailurePaymentInvalid, "invalid order"
	case models.ErrPaymentNotAllowed:
		return FailurePaymentNotAllowed, "the device is not allowed to make payments"
	case models.ErrStoreProductNotAvailable:
		return FailureProductNotAvailable, "the product is not available in the current storefront"
	case models.ErrCloudServicePermissionDenied:
		return FailureCloudServicePermissionDenied, "access to cloud service information is not allowed"
	case models.ErrCloudServiceNetworkConnectionFailed:
		return FailureCloudServiceNetworkFailed, "the device could not connect to the network"
	case models.ErrCloudServiceRevoked:
		return FailureCloudServiceRevoked, "the user revoked permission to use the cloud service"
	case models.ErrPrivacyAcknowledgementRequired:
		return FailurePrivacyAcknowledgementRequired, "the user has not acknowledged the privacy policy"
	case models.ErrUnauthorizedRequestData:
		return FailureUnauthorizedRequestData, "the app used request data without the required entitlement"
	case models.ErrInvalidOfferIdentifier:
		return FailureInvalidOfferIdentifier, "invalid subscription offer identifier"
	case models.ErrInvalidSignature:
		return FailureInvalidSignature, "the offer signature is invalid"
	case models.ErrMissingOfferParams:
		return FailureMissingOfferParams, "one or more offer parameters are missing"
	case models.ErrInvalidOfferPrice:
		return FailureInvalidOfferPrice, "the offer price is invalid"
	case models.ErrOverlayCancelled:
		return FailureOverlayCancelled, "the overlay was cancelled"
	case models.ErrOverlayInvalidConfiguration:
		return FailureOverlayInvalidConfiguration, "the overlay configuration is invalid"
	case models.ErrOverlayTimeout:
		return FailureOverlayTimeout, "the overlay timed out"
	case models.ErrIneligibleForOffer:
		return FailureIneligibleForOffer, "the user is not eligible for the offer"
	case models.ErrUnsupportedPlatform:
		return FailureUnsupportedPlatform, "the platform does not support this operation"
	case models.ErrOverlayPresentedInBackgroundScene:
		return FailureOverlayPresentedInBackgroundScene, "the overlay was presented in a background scene"
	default:
		return FailureUnknownError, "unrecognised platform error"
	}
}
