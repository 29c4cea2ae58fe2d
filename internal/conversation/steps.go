package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/internaltypes"
	"github.com/example/railbot/internal/rail"
	"go.uber.org/zap"
)

var (
	// errStopped means the user declined at the confirmation step.
	errStopped = errors.New("conversation: stopped by user")
	// errEnded means the step already reported the problem and tore down.
	errEnded = errors.New("conversation: ended")
)

// searchError is a search failure worth showing to the user as is.
type searchError struct{ msg string }

func (e *searchError) Error() string { return e.msg }

func (c *Conversation) run() {
	err := c.collect(c.ctx)
	if err == nil {
		c.startLegs()
		return
	}
	switch {
	case c.ended.Load():
	case errors.Is(err, errStopped):
		c.Cancel("Booking cancelled.")
	case errors.Is(err, ErrPromptTimeout), errors.Is(err, context.DeadlineExceeded):
		c.expire()
	default:
		c.log.Error("conversation step failed", zap.Error(err))
		c.notify(ErrorMessage("Something went wrong, the booking has been cancelled."))
		c.fail()
	}
}

// ask shows a select prompt bounded by the idle timeout. An empty answer
// asks again.
func (c *Conversation) ask(ctx context.Context, p SelectPrompt) ([]string, error) {
	for {
		sctx, cancel := context.WithTimeout(ctx, c.d.Timeouts.Idle)
		vals, err := c.ch.Select(sctx, p)
		cancel()
		if err != nil {
			return nil, err
		}
		c.touch()
		if len(vals) > 0 {
			return vals, nil
		}
		if err := c.ch.Send(ctx, Text("Please choose an option.")); err != nil {
			return nil, err
		}
	}
}

func (c *Conversation) askOne(ctx context.Context, p SelectPrompt) (string, error) {
	vals, err := c.ask(ctx, p)
	if err != nil {
		return "", err
	}
	return vals[0], nil
}

func (c *Conversation) fill(ctx context.Context, p FormPrompt) (map[string]string, error) {
	sctx, cancel := context.WithTimeout(ctx, c.d.Timeouts.Idle)
	defer cancel()
	vals, err := c.ch.Form(sctx, p)
	if err != nil {
		return nil, err
	}
	c.touch()
	return vals, nil
}

// retry tells the user why an answer was refused. Only validation errors
// are retried; anything else is returned.
func (c *Conversation) retry(ctx context.Context, err error) error {
	if !booking.IsValidation(err) {
		return err
	}
	return c.ch.Send(ctx, Message{Text: err.Error() + ". Please try again.", Tone: ToneWarning})
}

func (c *Conversation) collect(ctx context.Context) error {
	out := c.outbound
	welcome := Message{
		Title: fmt.Sprintf("%s booking", out.Provider),
		Text: fmt.Sprintf("Type `%s` at any time to stop.\nThe booking is cancelled after %s without an answer.",
			CancelWord, c.d.Timeouts.Idle),
	}
	if err := c.ch.Send(ctx, welcome); err != nil {
		return err
	}

	if err := c.chooseRoute(ctx, out); err != nil {
		return err
	}
	trip, err := c.askOne(ctx, tripTypePrompt())
	if err != nil {
		return err
	}
	if err := c.chooseDate(ctx, out, "Choose the travel date:", ""); err != nil {
		return err
	}
	if err := c.chooseTimes(ctx, out, "Choose departure times (several allowed):"); err != nil {
		return err
	}
	if err := c.choosePassengers(ctx, out); err != nil {
		return err
	}
	trains, err := c.search(ctx, out)
	if err != nil {
		var se *searchError
		if errors.As(err, &se) {
			c.notify(ErrorMessage(se.msg))
			c.fail()
			return errEnded
		}
		return err
	}
	if err := c.chooseTrains(ctx, out, trains); err != nil {
		return err
	}
	if err := c.chooseSeat(ctx, out); err != nil {
		return err
	}
	if err := c.chooseAutoPay(ctx, out); err != nil {
		return err
	}

	if trip == roundTrip {
		if err := c.collectReturn(ctx); err != nil {
			return err
		}
	}
	return c.confirm(ctx)
}

func (c *Conversation) chooseRoute(ctx context.Context, s *booking.Session) error {
	picked, err := c.chooseFavorite(ctx, s)
	if err != nil || picked {
		return err
	}
	dep, err := c.askOne(ctx, stationPrompt("Choose the departure station:", Stations(s.Provider)))
	if err != nil {
		return err
	}
	for {
		arr, err := c.askOne(ctx, stationPrompt("Choose the arrival station:", Stations(s.Provider)))
		if err != nil {
			return err
		}
		if err := (booking.SessionUpdate{Departure: &dep, Arrival: &arr}).Validate(); err != nil {
			if err := c.retry(ctx, err); err != nil {
				return err
			}
			continue
		}
		s.Departure, s.Arrival = dep, arr
		return nil
	}
}

// chooseFavorite offers the user's stored routes that this provider serves.
func (c *Conversation) chooseFavorite(ctx context.Context, s *booking.Session) (bool, error) {
	if c.d.Favorites == nil {
		return false, nil
	}
	all, err := c.d.Favorites.List(ctx, s.UserID)
	if err != nil {
		c.log.Warn("load favorite routes", zap.Error(err))
		return false, nil
	}
	favs := all[:0:0]
	for _, f := range all {
		if servesStation(s.Provider, f.Departure) && servesStation(s.Provider, f.Arrival) {
			favs = append(favs, f)
		}
	}
	if len(favs) == 0 {
		return false, nil
	}
	v, err := c.askOne(ctx, favoritePrompt(favs))
	if err != nil || v == manualRoute {
		return false, err
	}
	id, _ := strconv.ParseInt(v, 10, 64)
	for _, f := range favs {
		if f.ID == id {
			s.Departure, s.Arrival = f.Departure, f.Arrival
			return true, nil
		}
	}
	return false, nil
}

// chooseDate asks for a travel date no earlier than notBefore (YYYYMMDD,
// empty for no bound).
func (c *Conversation) chooseDate(ctx context.Context, s *booking.Session, text, notBefore string) error {
	for {
		d, err := c.askOne(ctx, datePrompt(text, c.d.Now()))
		if err != nil {
			return err
		}
		verr := (booking.SessionUpdate{Date: &d}).Validate()
		if verr == nil && notBefore != "" && d < notBefore {
			verr = &booking.ValidationError{Field: "date", Msg: fmt.Sprintf("The return date cannot be before the outbound date (%s)", FormatDate(notBefore))}
		}
		if verr != nil {
			if err := c.retry(ctx, verr); err != nil {
				return err
			}
			continue
		}
		s.Date = d
		return nil
	}
}

func (c *Conversation) chooseTimes(ctx context.Context, s *booking.Session, text string) error {
	for {
		vals, err := c.ask(ctx, timePrompt(text))
		if err != nil {
			return err
		}
		times := sortedTimes(vals)
		if err := (booking.SessionUpdate{Times: times}).Validate(); err != nil {
			if err := c.retry(ctx, err); err != nil {
				return err
			}
			continue
		}
		s.Times = times
		return nil
	}
}

func (c *Conversation) choosePassengers(ctx context.Context, s *booking.Session) error {
	for {
		in, err := c.fill(ctx, passengerForm())
		if err != nil {
			return err
		}
		p, err := parsePassengers(in)
		if err != nil {
			if err := c.retry(ctx, err); err != nil {
				return err
			}
			continue
		}
		s.Passengers = p
		return nil
	}
}

// search runs the first search for s and shows the result.
func (c *Conversation) search(ctx context.Context, s *booking.Session) ([]rail.Train, error) {
	if err := c.ch.Send(ctx, Text(fmt.Sprintf("Searching %s → %s on %s...", s.Departure, s.Arrival, FormatDate(s.Date)))); err != nil {
		return nil, err
	}
	trains, err := c.d.Engine.SearchTrains(ctx, s)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn("search failed", zap.Int64("session_id", s.ID), zap.Error(err))
		return nil, &searchError{msg: "Search failed: " + err.Error()}
	}
	if len(trains) == 0 {
		return nil, &searchError{msg: "No trains found for that date and time."}
	}
	if err := c.ch.Send(ctx, TrainListMessage(s, trains)); err != nil {
		return nil, err
	}
	return trains, nil
}

func (c *Conversation) chooseTrains(ctx context.Context, s *booking.Session, trains []rail.Train) error {
	for {
		vals, err := c.ask(ctx, trainPrompt(trains))
		if err != nil {
			return err
		}
		idx, err := parseIndexes(vals)
		if err != nil {
			if err := c.retry(ctx, err); err != nil {
				return err
			}
			continue
		}
		s.Selected = idx
		return nil
	}
}

func (c *Conversation) chooseSeat(ctx context.Context, s *booking.Session) error {
	for {
		v, err := c.askOne(ctx, seatPrompt())
		if err != nil {
			return err
		}
		policy := rail.SeatPolicy(v)
		if err := (booking.SessionUpdate{Seat: &policy}).Validate(); err != nil {
			if err := c.retry(ctx, err); err != nil {
				return err
			}
			continue
		}
		s.Seat = policy
		return nil
	}
}

// chooseAutoPay is only asked when a card is stored. A card that fails to
// decrypt is an error, not a missing card.
func (c *Conversation) chooseAutoPay(ctx context.Context, s *booking.Session) error {
	s.AutoPay = false
	if _, err := c.d.Profiles.Card(ctx, s.OwnerID); err != nil {
		if errors.Is(err, internaltypes.ErrNoCard) {
			return nil
		}
		return fmt.Errorf("load card: %w", err)
	}
	v, err := c.askOne(ctx, yesNoPrompt("Pay automatically with your stored card once a seat is booked?"))
	if err != nil {
		return err
	}
	s.AutoPay = v == answerYes
	return nil
}

func (c *Conversation) confirm(ctx context.Context) error {
	legs := c.Sessions()
	if err := c.ch.Send(ctx, SummaryMessage(legs...)); err != nil {
		return err
	}
	v, err := c.askOne(ctx, confirmPrompt())
	if err != nil {
		return err
	}
	if v != answerStart {
		return errStopped
	}
	for _, s := range legs {
		if err := c.d.Sessions.Update(ctx, s.ID, booking.ParamsUpdate(s)); err != nil {
			return fmt.Errorf("save session %d: %w", s.ID, err)
		}
	}
	return nil
}

// collectReturn sets up and configures the return leg. Any problem before
// the user has picked trains drops back to a one-way booking.
func (c *Conversation) collectReturn(ctx context.Context) error {
	ret, err := c.openReturn(ctx)
	if err != nil {
		if errors.Is(err, errEnded) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("return leg unavailable", zap.Error(err))
		c.notify(Message{Text: fmt.Sprintf("Could not prepare the return trip (%v). Continuing with the outbound trip only.", err), Tone: ToneWarning})
		return nil
	}

	if err := c.chooseDate(ctx, ret, "Choose the return date:", c.outbound.Date); err != nil {
		return err
	}
	if err := c.chooseTimes(ctx, ret, "Choose return departure times (several allowed):"); err != nil {
		return err
	}
	trains, err := c.search(ctx, ret)
	if err != nil {
		var se *searchError
		if errors.As(err, &se) {
			c.dropReturn(se.msg)
			return nil
		}
		return err
	}
	return c.chooseTrains(ctx, ret, trains)
}

// openReturn logs in a second client and claims a slot for the return leg.
// The slot is claimed and recorded under c.mu so teardown always sees it.
func (c *Conversation) openReturn(ctx context.Context) (*booking.Session, error) {
	out := c.outbound
	user, pass, err := c.d.Profiles.Credentials(ctx, out.OwnerID, out.Provider)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	client, err := c.d.Engine.Login(ctx, out.Provider, user, pass)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	id, err := c.d.Sessions.Create(ctx, out.UserID, out.ChannelID, out.Provider, booking.Return)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	ret := out.ReturnLeg(id, client)

	c.mu.Lock()
	if c.ended.Load() {
		c.mu.Unlock()
		c.setStatus(ret, booking.StatusCancelled)
		return nil, errEnded
	}
	if !c.d.Slots.Acquire(id, out.OwnerID, out.ChannelID, out.Provider) {
		c.mu.Unlock()
		c.setStatus(ret, booking.StatusError)
		return nil, errors.New("all booking slots are in use")
	}
	c.inbound = ret
	c.slotIDs = append(c.slotIDs, ret.ID)
	c.mu.Unlock()
	return ret, nil
}

func (c *Conversation) dropReturn(reason string) {
	c.mu.Lock()
	ret := c.inbound
	c.inbound = nil
	ids := c.slotIDs[:0]
	for _, id := range c.slotIDs {
		if id != ret.ID {
			ids = append(ids, id)
		}
	}
	c.slotIDs = ids
	c.mu.Unlock()

	c.d.Slots.Release(ret.ID)
	c.setStatus(ret, booking.StatusError)
	c.notify(Message{Text: reason + " Continuing with the outbound trip only.", Tone: ToneWarning})
}
