// internal/audience/resolver.go
package audience

import (
	"sort"

	"github.com/grassrootshq/outreach-backend/internal/model"
	"github.com/grassrootshq/outreach-backend/internal/repository"
)

// Filter is everything the resolver needs to turn targeting criteria into
// a concrete recipient set for one campaign.
type Filter struct {
	ZipCodes []string
	TagIDs   []int64
	Channel  model.Channel
	Message  string

	// PreventDuplicates drops voters already sent this exact message on
	// this channel by any campaign.
	PreventDuplicates bool
}

// Resolver computes the deduplicated, opt-out-filtered recipient set for a
// filter. Resolution is deterministic: same filter + same data snapshot
// always yields the same recipients in ascending voter-id order.
type Resolver struct {
	Voters     repository.VoterRepositoryInterface
	OptOuts    repository.OptOutRepositoryInterface
	Deliveries repository.DeliveryRepositoryInterface
}

// Resolve returns the recipient set: the union of voters in any target ZIP
// or carrying any target tag, minus voters without a usable address for
// the channel, minus active opt-outs, minus prior identical sends when the
// duplicate guard is on.
func (r *Resolver) Resolve(f Filter) ([]model.Recipient, error) {
	byID := map[int]model.Voter{}

	for _, zip := range f.ZipCodes {
		voters, err := r.Voters.FindByZip(zip)
		if err != nil {
			return nil, err
		}
		for _, v := range voters {
			byID[v.ID] = v
		}
	}
	for _, tagID := range f.TagIDs {
		voters, err := r.Voters.FindByTag(tagID)
		if err != nil {
			return nil, err
		}
		for _, v := range voters {
			byID[v.ID] = v
		}
	}

	optedOut := map[string]bool{}
	if f.Channel.UsesPhone() {
		var err error
		optedOut, err = r.OptOuts.ActivePhones(f.Channel)
		if err != nil {
			return nil, err
		}
	}

	alreadySent := map[int]bool{}
	if f.PreventDuplicates {
		var err error
		alreadySent, err = r.Deliveries.VotersSentMessage(f.Channel, f.Message)
		if err != nil {
			return nil, err
		}
	}

	recipients := []model.Recipient{}
	for _, v := range byID {
		addr := v.Address(f.Channel)
		if addr == "" {
			continue
		}
		if f.Channel.UsesPhone() {
			addr = model.NormalizePhone(addr)
			if optedOut[addr] {
				continue
			}
		}
		if alreadySent[v.ID] {
			continue
		}
		recipients = append(recipients, model.Recipient{VoterID: v.ID, Address: addr})
	}

	sort.Slice(recipients, func(i, j int) bool {
		return recipients[i].VoterID < recipients[j].VoterID
	})
	return recipients, nil
}

// PreviewCount runs the full resolution pipeline without materializing
// anything; it backs the pre-send audience size estimate.
func (r *Resolver) PreviewCount(f Filter) (int, error) {
	recipients, err := r.Resolve(f)
	if err != nil {
		return 0, err
	}
	return len(recipients), nil
}

// FilterFor builds the resolver filter for a campaign.
func FilterFor(c *model.Campaign) Filter {
	return Filter{
		ZipCodes:          c.ZipCodes,
		TagIDs:            c.TagIDs,
		Channel:           c.Channel,
		Message:           c.Message,
		PreventDuplicates: c.PreventDuplicateMessages,
	}
}
