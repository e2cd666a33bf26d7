package model

// Zone identifies a trial and its final encounter.
type Zone struct {
	Name               string
	ShortCode          string
	FinalEncounterID   int
	FinalEncounterName string
	Aliases            []string
}

var zones = []Zone{
	{Name: "Aetherian Archive", ShortCode: "AA", FinalEncounterID: 4, FinalEncounterName: "The Mage"},
	{Name: "Hel Ra Citadel", ShortCode: "HRC", FinalEncounterID: 8, FinalEncounterName: "The Warrior"},
	{Name: "Sanctum Ophidia", ShortCode: "SO", FinalEncounterID: 12, FinalEncounterName: "The Serpent"},
	{Name: "Maw of Lorkhaj", ShortCode: "MOL", FinalEncounterID: 15, FinalEncounterName: "Rakkhat"},
	{Name: "Halls of Fabrication", ShortCode: "HOF", FinalEncounterID: 20, FinalEncounterName: "Assembly General", Aliases: []string{"The Halls of Fabrication"}},
	{Name: "Asylum Sanctorium", ShortCode: "AS", FinalEncounterID: 23, FinalEncounterName: "Saint Olms the Just"},
	{Name: "Cloudrest", ShortCode: "CR", FinalEncounterID: 27, FinalEncounterName: "Z'Maja"},
	{Name: "Sunspire", ShortCode: "SS", FinalEncounterID: 45, FinalEncounterName: "Nahviintaas"},
	{Name: "Kyne's Aegis", ShortCode: "KA", FinalEncounterID: 48, FinalEncounterName: "Lord Falgravn"},
	{Name: "Rockgrove", ShortCode: "RG", FinalEncounterID: 51, FinalEncounterName: "Xalvakka"},
	{Name: "Dreadsail Reef", ShortCode: "DSR", FinalEncounterID: 54, FinalEncounterName: "Tideborn Taleria"},
	{Name: "Sanity's Edge", ShortCode: "SE", FinalEncounterID: 57, FinalEncounterName: "Ansuul the Tormentor"},
	{Name: "Lucent Citadel", ShortCode: "LC", FinalEncounterID: 60, FinalEncounterName: "Xoryn"},
}

var zoneIndex = buildZoneIndex()

func buildZoneIndex() map[string]int {
	idx := make(map[string]int, len(zones)*2)
	for i, z := range zones {
		idx[z.Name] = i
		idx[z.ShortCode] = i
		for _, alias := range z.Aliases {
			idx[alias] = i
		}
	}
	return idx
}

// LookupZone finds a zone by full name, alias or short code.
func LookupZone(name string) (Zone, bool) {
	i, ok := zoneIndex[name]
	if !ok {
		return Zone{}, false
	}
	return zones[i], true
}

// Zones returns a copy of the zone reference table.
func Zones() []Zone {
	out := make([]Zone, len(zones))
	copy(out, zones)
	return out
}
