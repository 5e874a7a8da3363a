package conversation

import (
	"context"

	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
	"github.com/wolfman30/vetclinic-ai-platform/internal/classifier"
	"github.com/wolfman30/vetclinic-ai-platform/internal/emergency"
	"github.com/wolfman30/vetclinic-ai-platform/internal/events"
	"github.com/wolfman30/vetclinic-ai-platform/internal/scheduling"
)

// preempt sends severe emergencies straight to CONFIRM_EMERGENCY from any
// state that has a path there.
func (e *Engine) preempt(ctx context.Context, t *turn) (bool, error) {
	state := t.conv.State
	if !t.class.Preempts() || state == StateConfirmEmergency || state == StateEscalate || state.Terminal() {
		return false, nil
	}
	path := PathTo(state, StateConfirmEmergency)
	if path == nil {
		return false, nil
	}
	if state == StateCollectStatus {
		concerning := t.class.Keywords
		if len(concerning) == 0 {
			concerning = []string{"emergencia"}
		}
		if err := e.followUpReplied(ctx, t, concerning); err != nil {
			return true, err
		}
	}
	e.move(t, path...)
	e.noteEmergency(t)
	t.reply = emergencyConfirm(emergencyLeadDefault)
	return true, nil
}

func emergencyLike(r classifier.Result) bool {
	return r.IsEmergency || r.Intent == classifier.IntentEmergency
}

func (e *Engine) noteEmergency(t *turn) {
	r := t.class
	t.conv.Data.Emergency = &EmergencyData{
		Urgency:     string(r.Urgency),
		Keywords:    append([]string(nil), r.Keywords...),
		Description: t.in.Text,
	}
	t.conv.EmergencyKeywords = append([]string(nil), r.Keywords...)
	t.conv.EmergencyDescription = t.in.Text
}

func (e *Engine) onGreeting(ctx context.Context, t *turn) error {
	name := t.cfg.Name
	if !e.move(t, StateIntentDetection) {
		return nil
	}
	r := t.class
	switch {
	case t.in.Text == "":
		t.reply = greetingMenu(name)
	case emergencyLike(r):
		e.move(t, StateConfirmEmergency)
		e.noteEmergency(t)
		t.reply = emergencyConfirm(emergencyLeadDefault)
	case r.Intent == classifier.IntentSchedule:
		return e.startScheduling(ctx, t, greetingSchedulingLead(name), greetingShort(name))
	case r.Intent == classifier.IntentQuestion:
		t.reply = greetingShort(name) + hoursText(t.cfg)
	default:
		t.reply = greetingMenu(name)
	}
	return nil
}

func (e *Engine) onIntentDetection(ctx context.Context, t *turn) error {
	r := t.class
	switch {
	case emergencyLike(r):
		e.move(t, StateConfirmEmergency)
		e.noteEmergency(t)
		t.reply = emergencyConfirm(emergencyLeadDefault)
	case r.Intent == classifier.IntentSchedule || r.Intent == classifier.IntentConfirmation:
		return e.startScheduling(ctx, t, schedulingLead, "")
	case r.Intent == classifier.IntentQuestion:
		t.reply = hoursText(t.cfg)
	case r.Intent == classifier.IntentRejection:
		if e.move(t, StateClosed) {
			t.conv.Outcome = OutcomeClosed
		}
		t.reply = goodbye(t.conv.Channel, t.conv.Outcome)
		t.end = true
	case r.Intent == classifier.IntentGreeting:
		t.reply = greetingMenu(t.cfg.Name)
	default:
		t.reply = unclearReply
	}
	return nil
}

// startScheduling enters ASK_REASON and runs the first negotiation step.
// askLead prefixes a question, offerLead an offer.
func (e *Engine) startScheduling(ctx context.Context, t *turn, askLead, offerLead string) error {
	if !e.move(t, StateAskReason) {
		return nil
	}
	t.conv.Data.Scheduling.ClearOffer()
	return e.negotiate(ctx, t, askLead, offerLead)
}

func (e *Engine) negotiationRequest(t *turn) scheduling.Request {
	d := t.class.Data
	return scheduling.Request{
		ClinicID: t.in.ClinicID,
		Text:     t.in.Text,
		Extraction: scheduling.Extraction{
			Species:       d.Species,
			PetName:       d.PetName,
			Reason:        d.Reason,
			PreferredDate: d.PreferredDate,
			PreferredTime: d.PreferredTime,
			ClientName:    d.ClientName,
		},
		Now: t.local,
		Duration: func(reason string) int {
			return calendar.DurationForReason(t.cfg, reason)
		},
	}
}

// negotiate runs one scheduling step from ASK_REASON.
func (e *Engine) negotiate(ctx context.Context, t *turn, askLead, offerLead string) error {
	st := &t.conv.Data.Scheduling
	dec, err := e.negotiator.Step(ctx, st, e.negotiationRequest(t))
	if err != nil {
		return err
	}
	switch dec.Action {
	case scheduling.ActionAsk:
		t.reply = askLead + dec.Message
	case scheduling.ActionOffer:
		e.move(t, StateOfferSlots)
		t.reply = offerLead + understoodLead(st.Reason) + dec.Message
	case scheduling.ActionUnavailable:
		t.reply = dec.Message
	case scheduling.ActionReady:
		e.move(t, StateOfferSlots, StateAwaitSelection, StateConfirmBooking)
		t.reply = e.confirmText(t, dec)
	default:
		t.reply = askLead + dec.Message
	}
	return nil
}

func (e *Engine) confirmText(t *turn, dec scheduling.Decision) string {
	st := &t.conv.Data.Scheduling
	day := dec.Date
	if day.IsZero() {
		day, _ = st.SlotDate(t.local.Location())
	}
	return confirmBookingText(calendar.SlotDisplay(day, t.local, *st.SelectedSlot), st.Reason)
}

func (e *Engine) onAskReason(ctx context.Context, t *turn) error {
	if emergencyLike(t.class) {
		e.move(t, StateConfirmEmergency)
		e.noteEmergency(t)
		t.reply = emergencyConfirm(emergencyLeadUrgent)
		return nil
	}
	return e.negotiate(ctx, t, "", "")
}

func (e *Engine) onOfferSlots(ctx context.Context, t *turn) error {
	if !e.move(t, StateAwaitSelection) {
		return nil
	}
	return e.onAwaitSelection(ctx, t)
}

func (e *Engine) onAwaitSelection(ctx context.Context, t *turn) error {
	st := &t.conv.Data.Scheduling
	dec, err := e.negotiator.Step(ctx, st, e.negotiationRequest(t))
	if err != nil {
		return err
	}
	switch dec.Action {
	case scheduling.ActionReady:
		e.move(t, StateConfirmBooking)
		t.reply = e.confirmText(t, dec)
	case scheduling.ActionReprompt:
		t.reply = dec.Message
	case scheduling.ActionOffer:
		e.move(t, StateOfferSlots)
		t.reply = dec.Message
	default:
		// the new date left a field to ask or had no availability
		e.move(t, StateOfferSlots, StateAskReason)
		t.reply = dec.Message
	}
	return nil
}

func (e *Engine) onConfirmBooking(ctx context.Context, t *turn) error {
	st := &t.conv.Data.Scheduling
	switch t.class.Intent {
	case classifier.IntentConfirmation:
		return e.book(ctx, t)
	case classifier.IntentRejection:
		st.SelectedSlot = nil
		e.move(t, StateOfferSlots)
		day, _ := st.SlotDate(t.local.Location())
		t.reply = scheduling.ReofferText(day, t.local, st.OfferedSlots)
	default:
		t.reply = confirmAskAgain
	}
	return nil
}

func bookingSource(ch Channel) calendar.Source {
	switch ch {
	case ChannelVoice:
		return calendar.SourceAIVoice
	case ChannelWebchat:
		return calendar.SourceAIWebchat
	}
	return calendar.SourceAIChat
}

func (e *Engine) book(ctx context.Context, t *turn) error {
	conv := t.conv
	st := &conv.Data.Scheduling
	day, hasDay := st.SlotDate(t.local.Location())
	if !st.IsComplete() || !hasDay {
		e.metrics.ObserveBooking(calendar.CodeIncompleteInfo)
		e.restartNegotiation(t, false)
		return nil
	}

	res, err := e.calendar.Book(ctx, conv.ClinicID, calendar.BookingRequest{
		ClientID:       conv.ClientID,
		ClientPhone:    st.ClientPhone,
		ClientName:     st.ClientName,
		PetName:        st.PetName,
		PetSpecies:     st.Species,
		Reason:         st.Reason,
		Date:           day,
		Slot:           *st.SelectedSlot,
		Source:         bookingSource(conv.Channel),
		ConversationID: conv.ID,
	})
	if err != nil {
		return err
	}

	if res.Success && res.Appointment != nil {
		e.metrics.ObserveBooking("booked")
		appt := res.Appointment
		display := calendar.SlotDisplay(day, t.local, *st.SelectedSlot)
		if e.move(t, StateCompleted) {
			conv.Outcome = OutcomeAppointmentScheduled
		}
		t.booked = true
		t.reply = bookedText(display)
		t.events = append(t.events, events.AppointmentBookedV1{
			AppointmentID:  appt.ID,
			ClinicID:       conv.ClinicID,
			ConversationID: conv.ID,
			ClientPhone:    appt.ClientPhone,
			PetName:        appt.PetName,
			PetSpecies:     appt.PetSpecies,
			Type:           string(appt.Type),
			Reason:         appt.Reason,
			StartsAt:       appt.StartsAt,
			EndsAt:         appt.EndsAt,
			Channel:        string(conv.Channel),
		})
		return nil
	}

	e.metrics.ObserveBooking(res.ErrorCode)
	if res.ErrorCode == calendar.CodeSlotTaken && len(res.Alternatives) > 0 && !res.AlternativesDate.IsZero() {
		altDay := res.AlternativesDate.In(t.local.Location())
		st.SetOffer(altDay, append([]calendar.TimeSlot(nil), res.Alternatives...))
		e.move(t, StateOfferSlots)
		t.reply = slotJustTaken + "\n\n" + scheduling.OfferText(altDay, t.local, st.OfferedSlots)
		return nil
	}
	e.restartNegotiation(t, res.ErrorCode != calendar.CodeIncompleteInfo)
	return nil
}

// restartNegotiation drops the offer and goes back to asking. When the
// chosen day is gone the date is asked again.
func (e *Engine) restartNegotiation(t *turn, dropDate bool) {
	st := &t.conv.Data.Scheduling
	st.ClearOffer()
	lead := ""
	if dropDate {
		st.PreferredDate = ""
		lead = slotNoLongerFree
	}
	e.move(t, StateOfferSlots, StateAskReason)
	field := scheduling.FieldPreferredDate
	if missing := st.MissingFields(); len(missing) > 0 {
		field = missing[0]
	}
	st.AwaitingField = field
	t.reply = lead + scheduling.QuestionFor(field)
}

func (e *Engine) onConfirmEmergency(ctx context.Context, t *turn) error {
	conv := t.conv
	r := t.class
	switch {
	case r.Intent == classifier.IntentRejection:
		if conv.ClientID != "" {
			if _, err := e.clients.IncrementFalseEmergency(ctx, conv.ClinicID, conv.ClientID); err != nil {
				return err
			}
		}
		st := &conv.Data.Scheduling
		st.ClearOffer()
		conv.Data.Emergency = nil
		e.move(t, StateAskReason)
		field := scheduling.FieldReason
		if missing := st.MissingFields(); len(missing) > 0 {
			field = missing[0]
		}
		st.AwaitingField = field
		t.reply = emergencyNotEmergency + scheduling.QuestionFor(field)
		return nil

	case r.Intent == classifier.IntentConfirmation || emergencyLike(r):
		return e.escalate(ctx, t)
	}
	t.reply = emergencyAskAgain
	return nil
}

func (e *Engine) escalate(ctx context.Context, t *turn) error {
	conv := t.conv
	if conv.ClientID != "" {
		client, err := e.clients.Get(ctx, conv.ClinicID, conv.ClientID)
		if err != nil {
			return err
		}
		if client.AccessRevoked {
			e.emergencies.Denied(ctx, conv.ClinicID, conv.ClientID, conv.ID)
			if e.move(t, StateClosed) {
				conv.Outcome = OutcomeEmergencyDenied
			}
			t.reply = emergencyRevoked
			t.end = true
			return nil
		}
	}

	em := conv.Data.Emergency
	if em == nil {
		em = &EmergencyData{Urgency: string(t.class.Urgency), Keywords: t.class.Keywords, Description: conv.EmergencyDescription}
		conv.Data.Emergency = em
	}
	if em.Description == "" {
		em.Description = t.in.Text
	}
	st := conv.Data.Scheduling
	out, err := e.emergencies.Raise(ctx, emergency.RaiseRequest{
		ClinicID:       conv.ClinicID,
		ConversationID: conv.ID,
		ClientID:       conv.ClientID,
		Phone:          conv.Phone,
		PetName:        st.PetName,
		PetSpecies:     st.Species,
		Description:    em.Description,
		Keywords:       em.Keywords,
		Urgency:        em.Urgency,
	})
	if err != nil {
		return err
	}
	if !e.move(t, StateEscalate) {
		return nil
	}
	conv.Status = StatusEscalated
	conv.Outcome = OutcomeEscalated
	if out.Event != nil {
		em.EventID = out.Event.ID
	}
	t.escalated = true
	t.reply = emergencyRegistered
	if !out.Reached {
		t.reply += "\n\n" + emergencyUnreached(t.cfg)
	}
	return nil
}

func (e *Engine) onCollectStatus(ctx context.Context, t *turn) error {
	conv := t.conv
	var extra []string
	if conv.Data.FollowUp != nil {
		extra = conv.Data.FollowUp.EscalationKeywords
	}
	concerning := MatchConcerning(t.in.Text, extra)
	if err := e.followUpReplied(ctx, t, concerning); err != nil {
		return err
	}
	if !e.move(t, StateCompleted) {
		return nil
	}
	if len(concerning) > 0 {
		conv.Outcome = OutcomeFollowUpEscalated
		t.reply = followUpWorried
		return nil
	}
	conv.Outcome = OutcomeFollowUpResponded
	t.reply = followUpFine
	return nil
}

func (e *Engine) followUpReplied(ctx context.Context, t *turn, concerning []string) error {
	fu := t.conv.Data.FollowUp
	if fu == nil || e.followUps == nil {
		if len(concerning) > 0 {
			e.logger.Warn("concerning follow-up reply without tracker", "conversation_id", t.conv.ID)
		}
		return nil
	}
	return e.followUps.FollowUpReplied(ctx, FollowUpReply{
		ClinicID:       t.conv.ClinicID,
		ConversationID: t.conv.ID,
		FollowUpID:     fu.FollowUpID,
		AppointmentID:  fu.AppointmentID,
		Phone:          t.conv.Phone,
		PetName:        fu.PetName,
		Response:       t.in.Text,
		Concerning:     concerning,
	})
}

func (e *Engine) onReminder(ctx context.Context, t *turn) error {
	if !e.move(t, StateIntentDetection) {
		return nil
	}
	return e.onIntentDetection(ctx, t)
}

// onCompleted answers a closing remark on a finished conversation. New
// requests never get here; open starts a fresh conversation for them.
func (e *Engine) onCompleted(_ context.Context, t *turn) error {
	conv := t.conv
	switch t.class.Intent {
	case classifier.IntentRejection, classifier.IntentGreeting:
		e.move(t, StateClosed)
		t.reply = goodbye(conv.Channel, conv.Outcome)
		t.end = true
	default:
		e.move(t, StateClosed)
		t.reply = anythingElse
	}
	return nil
}
