package contract

import "testing"

var allStatuses = []Status{
	StatusPending, StatusDeclined, StatusWithdrawn, StatusArtistSigned,
	StatusPaymentPending, StatusPaymentCompleted, StatusCancellationRequested,
	StatusCanceled, StatusSettled, StatusRejected,
}

func countEnabled(a Actions) int {
	n := 0
	for _, b := range []bool{
		a.CanDecline, a.CanRedraft, a.CanWithdraw, a.CanSignAsArtist,
		a.CanFinalize, a.CanRetryPayment, a.CanConfirmSettlement, a.CanRequestCancellation,
	} {
		if b {
			n++
		}
	}
	return n
}

func TestActionsFor_EveryStatusHasLabel(t *testing.T) {
	for _, status := range allStatuses {
		for _, role := range []Role{RoleLeader, RoleArtist} {
			a := ActionsFor(status, role)
			if a.Label == "" {
				t.Errorf("no label for (%s, %s)", status, role)
			}
		}
	}
}

func TestActionsFor_TerminalStatesOfferNothing(t *testing.T) {
	for _, status := range []Status{StatusWithdrawn, StatusCanceled, StatusSettled, StatusRejected} {
		for _, role := range []Role{RoleLeader, RoleArtist} {
			if n := countEnabled(ActionsFor(status, role)); n != 0 {
				t.Errorf("(%s, %s) offers %d actions, want 0", status, role, n)
			}
		}
	}
}

func TestActionsFor_Pending(t *testing.T) {
	leader := ActionsFor(StatusPending, RoleLeader)
	if !leader.CanWithdraw || countEnabled(leader) != 1 {
		t.Errorf("pending leader actions: %+v", leader)
	}

	artist := ActionsFor(StatusPending, RoleArtist)
	if !artist.CanDecline || !artist.CanSignAsArtist || countEnabled(artist) != 2 {
		t.Errorf("pending artist actions: %+v", artist)
	}
}

func TestActionsFor_Declined(t *testing.T) {
	leader := ActionsFor(StatusDeclined, RoleLeader)
	if !leader.CanRedraft || !leader.CanWithdraw || countEnabled(leader) != 2 {
		t.Errorf("declined leader actions: %+v", leader)
	}
	if n := countEnabled(ActionsFor(StatusDeclined, RoleArtist)); n != 0 {
		t.Errorf("declined artist has %d actions, want 0", n)
	}
}

func TestActionsFor_ArtistSigned(t *testing.T) {
	leader := ActionsFor(StatusArtistSigned, RoleLeader)
	if !leader.CanFinalize || !leader.CanWithdraw || countEnabled(leader) != 2 {
		t.Errorf("artist-signed leader actions: %+v", leader)
	}
	if n := countEnabled(ActionsFor(StatusArtistSigned, RoleArtist)); n != 0 {
		t.Errorf("artist-signed artist has %d actions, want 0", n)
	}
}

func TestActionsFor_PaymentPending(t *testing.T) {
	leader := ActionsFor(StatusPaymentPending, RoleLeader)
	if !leader.CanRetryPayment || !leader.CanWithdraw || countEnabled(leader) != 2 {
		t.Errorf("payment-pending leader actions: %+v", leader)
	}
	if n := countEnabled(ActionsFor(StatusPaymentPending, RoleArtist)); n != 0 {
		t.Errorf("payment-pending artist has %d actions, want 0", n)
	}
}

func TestActionsFor_PaymentCompleted(t *testing.T) {
	leader := ActionsFor(StatusPaymentCompleted, RoleLeader)
	if !leader.CanConfirmSettlement || !leader.CanRequestCancellation || countEnabled(leader) != 2 {
		t.Errorf("payment-completed leader actions: %+v", leader)
	}

	artist := ActionsFor(StatusPaymentCompleted, RoleArtist)
	if !artist.CanRequestCancellation || countEnabled(artist) != 1 {
		t.Errorf("payment-completed artist actions: %+v", artist)
	}
}

func TestActionsFor_CancellationRequested(t *testing.T) {
	// Both parties wait for arbitration; nothing is actionable.
	for _, role := range []Role{RoleLeader, RoleArtist} {
		a := ActionsFor(StatusCancellationRequested, role)
		if countEnabled(a) != 0 {
			t.Errorf("cancellation-requested %s actions: %+v", role, a)
		}
	}
}

func TestActionsFor_UnknownCombination(t *testing.T) {
	a := ActionsFor(Status("BOGUS"), RoleLeader)
	if countEnabled(a) != 0 || a.Label != "" {
		t.Errorf("unknown status returned actions: %+v", a)
	}
}
