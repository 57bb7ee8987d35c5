package pipeline

// FetchFileForTest exposes fetchFile.
var FetchFileForTest = fetchFile

// FetchFolderForTest exposes fetchFolder.
var FetchFolderForTest = fetchFolder
