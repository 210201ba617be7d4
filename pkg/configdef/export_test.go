package configdef

var RecordsAndArchivesToSamePath = recordsAndArchivesToSamePath
