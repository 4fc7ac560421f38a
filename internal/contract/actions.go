package contract

// Actions is the discriminated set of legal next actions for one viewer of a
// contract, computed purely from status and role. The UI renders from this
// instead of scattering status conditionals.
type Actions struct {
	CanDecline             bool   `json:"canDecline"`
	CanRedraft             bool   `json:"canRedraft"`
	CanWithdraw            bool   `json:"canWithdraw"`
	CanSignAsArtist        bool   `json:"canSignAsArtist"`
	CanFinalize            bool   `json:"canFinalize"`
	CanRetryPayment        bool   `json:"canRetryPayment"`
	CanConfirmSettlement   bool   `json:"canConfirmSettlement"`
	CanRequestCancellation bool   `json:"canRequestCancellation"`
	Label                  string `json:"label"`
}

type actionKey struct {
	status Status
	role   Role
}

var actionTable = map[actionKey]Actions{
	{StatusPending, RoleLeader}: {
		CanWithdraw: true,
		Label:       "Awaiting artist response",
	},
	{StatusPending, RoleArtist}: {
		CanDecline:      true,
		CanSignAsArtist: true,
		Label:           "Offer received",
	},
	{StatusDeclined, RoleLeader}: {
		CanRedraft:  true,
		CanWithdraw: true,
		Label:       "Declined by artist",
	},
	{StatusDeclined, RoleArtist}: {
		Label: "You declined this offer",
	},
	{StatusArtistSigned, RoleLeader}: {
		CanFinalize: true,
		CanWithdraw: true,
		Label:       "Artist signed, awaiting your signature",
	},
	{StatusArtistSigned, RoleArtist}: {
		Label: "Awaiting leader signature",
	},
	{StatusPaymentPending, RoleLeader}: {
		CanRetryPayment: true,
		CanWithdraw:     true,
		Label:           "Payment in progress",
	},
	{StatusPaymentPending, RoleArtist}: {
		Label: "Awaiting payment",
	},
	{StatusPaymentCompleted, RoleLeader}: {
		CanConfirmSettlement:   true,
		CanRequestCancellation: true,
		Label:                  "Contract active",
	},
	{StatusPaymentCompleted, RoleArtist}: {
		CanRequestCancellation: true,
		Label:                  "Contract active",
	},
	{StatusCancellationRequested, RoleLeader}: {
		Label: "Cancellation under review",
	},
	{StatusCancellationRequested, RoleArtist}: {
		Label: "Cancellation under review",
	},
	{StatusWithdrawn, RoleLeader}: {
		Label: "You withdrew this offer",
	},
	{StatusWithdrawn, RoleArtist}: {
		Label: "Offer withdrawn by leader",
	},
	{StatusCanceled, RoleLeader}: {
		Label: "Contract canceled",
	},
	{StatusCanceled, RoleArtist}: {
		Label: "Contract canceled",
	},
	{StatusSettled, RoleLeader}: {
		Label: "Contract settled",
	},
	{StatusSettled, RoleArtist}: {
		Label: "Contract settled",
	},
	{StatusRejected, RoleLeader}: {
		Label: "Contract rejected",
	},
	{StatusRejected, RoleArtist}: {
		Label: "Contract rejected",
	},
}

// ActionsFor returns the legal next actions for a role viewing a contract in
// the given status. Unknown combinations return an empty set with no label.
func ActionsFor(status Status, role Role) Actions {
	return actionTable[actionKey{status, role}]
}
