package shop

import (
	"github.com/dreamup/touchbot/internal/scanner"
	"github.com/dreamup/touchbot/internal/vision"
)

// Catalog lists the templates the shop flows look for.
type Catalog struct {
	RoadsideShop        vision.Target
	Layout              vision.Target
	PurchaseNewSlot     vision.Target
	Sold                vision.Target
	CreateNewSale       vision.Target
	OccupiedByWheat     vision.Target
	XButton             vision.Target
	Plus                vision.Target
	PlusDisabled        vision.Target
	PlusMax             vision.Target
	WheatIcon           vision.Target
	SiloIcon            vision.Target
	SiloStorage         vision.Target
	PutOnSale           vision.Target
	AdvertiseNow        vision.Target
	CreateAdvertisement vision.Target
}

// DefaultCatalog returns the asset layout shipped with the bot, with paths
// relative to the assets directory.
func DefaultCatalog() Catalog {
	masked := func(name, path string) vision.Target {
		return vision.Target{Name: name, Path: path, Mask: true}
	}
	c := Catalog{
		RoadsideShop:        masked("roadside_shop", "farm/roadside_shop.png"),
		Layout:              masked("layout", "roadside_shop/layout.png"),
		PurchaseNewSlot:     masked("purchase_new_slot", "roadside_shop/purchase_new_slot.png"),
		Sold:                masked("sold", "roadside_shop/sold.png"),
		CreateNewSale:       vision.Target{Name: "create_new_sale", Path: "roadside_shop/create_new_sale.png"},
		OccupiedByWheat:     masked("occupied_by_wheat", "roadside_shop/occupied_by_wheat.png"),
		XButton:             masked("x_button", "x_button.png"),
		Plus:                masked("plus", "roadside_shop/sale_preview/plus.png"),
		PlusDisabled:        masked("plus_disabled", "roadside_shop/sale_preview/plus_disabled.png"),
		PlusMax:             masked("plus_max", "roadside_shop/sale_preview/plus_max.png"),
		WheatIcon:           masked("wheat_icon", "roadside_shop/sale_preview/wheat_icon.png"),
		SiloIcon:            masked("silo_icon", "roadside_shop/sale_preview/silo_icon.png"),
		SiloStorage:         masked("silo_storage", "roadside_shop/sale_preview/silo_storage.png"),
		PutOnSale:           masked("put_on_sale", "roadside_shop/sale_preview/put_on_sale.png"),
		AdvertiseNow:        masked("advertise_now", "roadside_shop/advertise_now.png"),
		CreateAdvertisement: masked("create_advertisement", "roadside_shop/create_advertisement.png"),
	}
	c.RoadsideShop.Threshold = 0.65
	return c
}

// Resolve anchors every relative path at dir and applies scale to every target.
func (c Catalog) Resolve(dir string, scale float64) Catalog {
	for _, t := range c.targets() {
		*t = t.Resolve(dir)
		if scale > 0 {
			t.Scale = scale
		}
	}
	return c
}

func (c *Catalog) targets() []*vision.Target {
	return []*vision.Target{
		&c.RoadsideShop, &c.Layout, &c.PurchaseNewSlot, &c.Sold, &c.CreateNewSale,
		&c.OccupiedByWheat, &c.XButton, &c.Plus, &c.PlusDisabled, &c.PlusMax,
		&c.WheatIcon, &c.SiloIcon, &c.SiloStorage, &c.PutOnSale, &c.AdvertiseNow,
		&c.CreateAdvertisement,
	}
}

// ScanLayout maps the shop list onto the scanner's layout.
func (c Catalog) ScanLayout() scanner.Layout {
	l := scanner.Layout{
		Landmark:  c.Layout,
		EndMarker: c.PurchaseNewSlot,
	}
	l.Slots[scanner.Sold] = scanner.SlotTarget{Target: c.Sold}
	l.Slots[scanner.Open] = scanner.SlotTarget{Target: c.CreateNewSale}
	l.Slots[scanner.Occupied] = scanner.SlotTarget{Target: c.OccupiedByWheat, Item: "wheat"}
	return l
}
